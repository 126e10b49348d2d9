package models

import (
	"sort"
	"time"

	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Status is the lifecycle state of an observation.
//
// Lifecycle: uploaded → analyzing → ready_for_review → confirmed → saved,
// with failed reachable from analyzing and deleted reachable from any
// non-terminal state (plus saved, via explicit user deletion).
type Status string

const (
	StatusUploaded       Status = "uploaded"
	StatusAnalyzing      Status = "analyzing"
	StatusReadyForReview Status = "ready_for_review"
	StatusConfirmed      Status = "confirmed"
	StatusSaved          Status = "saved"
	StatusFailed         Status = "failed"
	StatusDeleted        Status = "deleted"
)

// validTransitions is the single source of truth for the state machine.
// A transition absent from this table is rejected as stale.
var validTransitions = map[Status]map[Status]bool{
	StatusUploaded:       {StatusAnalyzing: true, StatusDeleted: true},
	StatusAnalyzing:      {StatusReadyForReview: true, StatusFailed: true, StatusDeleted: true},
	StatusReadyForReview: {StatusConfirmed: true, StatusDeleted: true},
	StatusConfirmed:      {StatusSaved: true, StatusDeleted: true},
	StatusSaved:          {StatusDeleted: true},
	StatusFailed:         {},
	StatusDeleted:        {},
}

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether the lifecycle engine makes no further automatic
// transition out of this status.
func (s Status) IsTerminal() bool {
	return s == StatusSaved || s == StatusFailed || s == StatusDeleted
}

// CanTransitionTo reports whether the state machine permits s → to.
func (s Status) CanTransitionTo(to Status) bool {
	return validTransitions[s][to]
}

func (s Status) String() string { return string(s) }

// MaxSuggestions caps how many ranked suggestions the mediator may deliver.
const MaxSuggestions = 3

// ImageRef points at the captured photo. The engine stores only opaque
// references, never raw bytes.
type ImageRef struct {
	StorageRef string `json:"storage_ref"`
	AccessURL  string `json:"access_url"`
}

// Location carries the optional place context of a capture.
//
// Invariant: Label is at most a place or region name, never an exact
// coordinate, and is empty whenever Enabled is false.
type Location struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label,omitempty"`
}

// Suggestion is one ranked species candidate from the recognition mediator.
// Suggestions are embedded in their observation and replaced wholesale when
// the mediator writes results.
type Suggestion struct {
	SpeciesID         domain.SpeciesID `json:"species_id"`
	DisplayName       string           `json:"display_name"`
	ScientificName    string           `json:"scientific_name"`
	Confidence        float64          `json:"confidence"`
	ReferenceImageURL string           `json:"reference_image_url,omitempty"`
	Category          domain.Category  `json:"category"`
}

// Confirmation records the user's selected species.
type Confirmation struct {
	SpeciesID    domain.SpeciesID `json:"species_id"`
	Confidence   float64          `json:"confidence"`
	IsNewForUser bool             `json:"is_new_for_user"`
}

// Observation is the aggregate for one capture attempt.
//
// Invariants:
//   - OwnerID is set at creation and never reassigned
//   - Confirmed is present if and only if Status ∈ {confirmed, saved}
//   - Suggestions has length 0–3, ordered by descending confidence
//   - Location.Label is empty when Location.Enabled is false
//   - StatsApplied is true only once the profile stats increments for this
//     record have been applied; it guards confirmation retries against
//     double-counting
type Observation struct {
	ID           domain.ObservationID `json:"id"`
	OwnerID      domain.AccountID     `json:"owner_id"`
	Status       Status               `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Image        ImageRef             `json:"image"`
	Suggestions  []Suggestion         `json:"suggestions"`
	Confirmed    *Confirmation        `json:"confirmed,omitempty"`
	Location     Location             `json:"location"`
	StatsApplied bool                 `json:"stats_applied"`
}

// New creates an observation in status uploaded.
//
// Errors: CodeInvalidInput when the image storage reference is empty or the
// owner is unset.
func New(owner domain.AccountID, image ImageRef, location Location, now time.Time) (*Observation, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "observation owner is required")
	}
	if image.StorageRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "image reference is required")
	}
	if !location.Enabled {
		location.Label = ""
	}
	return &Observation{
		ID:        domain.NewObservationID(),
		OwnerID:   owner,
		Status:    StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
		Image:     image,
		Location:  location,
	}, nil
}

// CanTransitionTo validates a requested transition against the record's
// current status. Use with the Apply* mutators in store Execute callbacks.
//
// Errors: CodeStaleTransition when the state machine forbids the move.
func (o *Observation) CanTransitionTo(to Status) error {
	if !o.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeStaleTransition,
			"cannot transition observation from %s to %s", o.Status, to)
	}
	return nil
}

// ApplyAnalyzing records that the recognition request was accepted.
func (o *Observation) ApplyAnalyzing(now time.Time) {
	o.Status = StatusAnalyzing
	o.UpdatedAt = now
}

// ApplySuggestions stores the mediator's ranked candidates and advances to
// ready_for_review. The list is normalized to descending confidence order.
// Call CanTransitionTo and ValidateSuggestions first.
func (o *Observation) ApplySuggestions(suggestions []Suggestion, now time.Time) {
	sorted := make([]Suggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	o.Suggestions = sorted
	o.Status = StatusReadyForReview
	o.UpdatedAt = now
}

// ApplyFailure records a mediator failure or timeout.
func (o *Observation) ApplyFailure(now time.Time) {
	o.Status = StatusFailed
	o.UpdatedAt = now
}

// ApplyDeletion soft-deletes the record. It remains in the store but is
// excluded from collection queries.
func (o *Observation) ApplyDeletion(now time.Time) {
	o.Status = StatusDeleted
	o.UpdatedAt = now
}

// ApplyConfirmation writes the user's selection and advances to confirmed.
// Stats for this record are not yet applied at this point.
func (o *Observation) ApplyConfirmation(c Confirmation, now time.Time) {
	confirmed := c
	o.Confirmed = &confirmed
	o.Status = StatusConfirmed
	o.StatsApplied = false
	o.UpdatedAt = now
}

// ApplySaved marks the stats contribution applied and advances to saved.
func (o *Observation) ApplySaved(now time.Time) {
	o.StatsApplied = true
	o.Status = StatusSaved
	o.UpdatedAt = now
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state outside an Execute callback.
func (o *Observation) Clone() *Observation {
	clone := *o
	if o.Suggestions != nil {
		clone.Suggestions = make([]Suggestion, len(o.Suggestions))
		copy(clone.Suggestions, o.Suggestions)
	}
	if o.Confirmed != nil {
		confirmed := *o.Confirmed
		clone.Confirmed = &confirmed
	}
	return &clone
}

// SuggestionFor returns the suggestion matching the given species id.
func (o *Observation) SuggestionFor(speciesID domain.SpeciesID) (Suggestion, bool) {
	for _, s := range o.Suggestions {
		if s.SpeciesID == speciesID {
			return s, true
		}
	}
	return Suggestion{}, false
}

// ValidateSuggestions enforces the mediator contract on a candidate list:
// 1–3 entries, confidence within [0,1], valid category and species ids.
func ValidateSuggestions(suggestions []Suggestion) error {
	if len(suggestions) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "recognition result requires at least one suggestion")
	}
	if len(suggestions) > MaxSuggestions {
		return dErrors.Newf(dErrors.CodeInvalidInput, "recognition result exceeds %d suggestions", MaxSuggestions)
	}
	for _, s := range suggestions {
		if s.SpeciesID == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "suggestion species id is required")
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "suggestion confidence must be within [0,1]")
		}
		if !s.Category.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "suggestion category is invalid")
		}
	}
	return nil
}

// CheckInvariants verifies the aggregate's structural invariants. Property
// tests call it after every mutation path.
func (o *Observation) CheckInvariants() error {
	confirmedStatus := o.Status == StatusConfirmed || o.Status == StatusSaved
	if confirmedStatus && o.Confirmed == nil {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"observation in status %s has no confirmation", o.Status)
	}
	// Deleted records are logically destroyed; a confirmation left over from a
	// deleted saved record is retained for audit and exempt from the iff rule.
	if !confirmedStatus && o.Status != StatusDeleted && o.Confirmed != nil {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"observation in status %s carries a confirmation", o.Status)
	}
	if len(o.Suggestions) > MaxSuggestions {
		return dErrors.New(dErrors.CodeInvariantViolation, "too many suggestions")
	}
	if !o.Location.Enabled && o.Location.Label != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "location label present while location disabled")
	}
	return nil
}
