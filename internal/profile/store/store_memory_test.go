package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fieldbook/internal/profile/models"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/sentinel"
)

type ProfileStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestProfileStoreSuite(t *testing.T) {
	suite.Run(t, new(ProfileStoreSuite))
}

func (s *ProfileStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ProfileStoreSuite) newProfile() *models.Profile {
	p, err := models.New(domain.AccountID(uuid.New()), "Alex", time.Now().UTC())
	s.Require().NoError(err)
	return p
}

func (s *ProfileStoreSuite) TestSaveAndFind() {
	p := s.newProfile()
	s.Require().NoError(s.store.Save(s.ctx, p))

	found, err := s.store.FindByAccount(s.ctx, p.AccountID)
	s.Require().NoError(err)
	s.Equal(p.AccountID, found.AccountID)
	s.Equal("Alex", found.DisplayName)

	_, err = s.store.FindByAccount(s.ctx, domain.AccountID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ProfileStoreSuite) TestSavePreservesLocalFields() {
	p := s.newProfile()
	s.Require().NoError(s.store.Save(s.ctx, p))

	now := time.Now().UTC()
	_, err := s.store.Execute(s.ctx, p.AccountID, func(profile *models.Profile) error {
		profile.ApplyStats(true, now)
		profile.CompleteOnboarding(now)
		return nil
	})
	s.Require().NoError(err)

	// A later identity sync must only touch the display name.
	resynced := p.Clone()
	resynced.DisplayName = "Alexandra"
	resynced.UpdatedAt = now.Add(time.Minute)
	s.Require().NoError(s.store.Save(s.ctx, resynced))

	found, err := s.store.FindByAccount(s.ctx, p.AccountID)
	s.Require().NoError(err)
	s.Equal("Alexandra", found.DisplayName)
	s.Equal(models.Stats{ObservationCount: 1, SpeciesCount: 1}, found.Stats)
	s.True(found.OnboardingComplete)
}

func (s *ProfileStoreSuite) TestExecuteAbortsOnMutateError() {
	p := s.newProfile()
	s.Require().NoError(s.store.Save(s.ctx, p))

	_, err := s.store.Execute(s.ctx, p.AccountID, func(profile *models.Profile) error {
		return profile.RevertStats(false, time.Now().UTC())
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	found, err := s.store.FindByAccount(s.ctx, p.AccountID)
	s.Require().NoError(err)
	s.Equal(models.Stats{}, found.Stats)
}

func (s *ProfileStoreSuite) TestExecuteUnknownAccount() {
	_, err := s.store.Execute(s.ctx, domain.AccountID(uuid.New()), func(*models.Profile) error {
		return nil
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ProfileStoreSuite) TestFindReturnsClone() {
	p := s.newProfile()
	s.Require().NoError(s.store.Save(s.ctx, p))

	found, err := s.store.FindByAccount(s.ctx, p.AccountID)
	s.Require().NoError(err)
	found.Stats.ObservationCount = 99

	again, err := s.store.FindByAccount(s.ctx, p.AccountID)
	s.Require().NoError(err)
	s.Equal(0, again.Stats.ObservationCount)
}
