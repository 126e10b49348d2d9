package models

import (
	"time"

	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Stats are the collection counters shown on the profile: how many
// observations the account saved and how many distinct species that covers.
//
// Invariant: 0 <= SpeciesCount <= ObservationCount.
type Stats struct {
	ObservationCount int `json:"observation_count"`
	SpeciesCount     int `json:"species_count"`
}

// Settings are the account preferences the app honors on every capture.
type Settings struct {
	LocationEnabled bool                `json:"location_enabled"`
	Language        domain.LanguageCode `json:"language"`
}

// Profile is the local projection of one account: identity attributes synced
// from the identity feed plus the collection stats this service owns.
type Profile struct {
	AccountID          domain.AccountID `json:"account_id"`
	DisplayName        string           `json:"display_name"`
	Stats              Stats            `json:"stats"`
	OnboardingComplete bool             `json:"onboarding_complete"`
	Settings           Settings         `json:"settings"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// New creates a profile with zero stats and default settings.
func New(accountID domain.AccountID, displayName string, now time.Time) (*Profile, error) {
	if accountID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "profile account id is required")
	}
	return &Profile{
		AccountID:   accountID,
		DisplayName: displayName,
		Settings:    Settings{Language: domain.LanguageEnglish},
		UpdatedAt:   now,
	}, nil
}

// ApplyStats counts one saved observation, and one new species when the
// confirmed species is a first for this account.
func (p *Profile) ApplyStats(isNewSpecies bool, now time.Time) {
	p.Stats.ObservationCount++
	if isNewSpecies {
		p.Stats.SpeciesCount++
	}
	p.UpdatedAt = now
}

// RevertStats undoes exactly one ApplyStats with the same isNewSpecies flag.
// The confirmation workflow calls it when the final save step fails after the
// stats were already applied.
//
// Errors: CodeInvariantViolation when the revert would drive a counter
// negative, which means apply and revert were not paired.
func (p *Profile) RevertStats(isNewSpecies bool, now time.Time) error {
	if p.Stats.ObservationCount < 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "observation count revert below zero")
	}
	if isNewSpecies && p.Stats.SpeciesCount < 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "species count revert below zero")
	}
	p.Stats.ObservationCount--
	if isNewSpecies {
		p.Stats.SpeciesCount--
	}
	p.UpdatedAt = now
	return nil
}

// CompleteOnboarding marks the intro flow done. Repeat calls are no-ops.
func (p *Profile) CompleteOnboarding(now time.Time) {
	if p.OnboardingComplete {
		return
	}
	p.OnboardingComplete = true
	p.UpdatedAt = now
}

// UpdateSettings replaces the preferences after validating them.
//
// Errors: CodeInvalidInput for an unsupported language code.
func (p *Profile) UpdateSettings(s Settings, now time.Time) error {
	if !s.Language.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unsupported language %q", s.Language)
	}
	p.Settings = s
	p.UpdatedAt = now
	return nil
}

// Clone returns a copy safe to hand outside the store.
func (p *Profile) Clone() *Profile {
	clone := *p
	return &clone
}

// CheckInvariants verifies the stats counters.
func (p *Profile) CheckInvariants() error {
	if p.Stats.ObservationCount < 0 || p.Stats.SpeciesCount < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "negative profile stats")
	}
	if p.Stats.SpeciesCount > p.Stats.ObservationCount {
		return dErrors.New(dErrors.CodeInvariantViolation, "species count exceeds observation count")
	}
	return nil
}
