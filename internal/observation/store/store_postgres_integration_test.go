//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fieldbook/internal/observation/models"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/sentinel"
	"fieldbook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	store *Postgres
	ctx   context.Context
	owner domain.AccountID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration suite in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	s := &PostgresStoreSuite{store: NewPostgres(pg.DB), ctx: context.Background()}
	if err := s.store.Migrate(s.ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	suite.Run(t, s)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.owner = domain.AccountID(uuid.New())
}

func (s *PostgresStoreSuite) newReadyObservation() *models.Observation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	obs, err := models.New(s.owner,
		models.ImageRef{StorageRef: "img/" + uuid.NewString()},
		models.Location{Enabled: true, Label: "Harz"}, now)
	s.Require().NoError(err)
	obs.ApplyAnalyzing(now)
	obs.ApplySuggestions([]models.Suggestion{
		{SpeciesID: "A", DisplayName: "Red Admiral", ScientificName: "Vanessa atalanta", Confidence: 0.9, Category: domain.CategoryInsect},
	}, now)
	return obs
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	obs := s.newReadyObservation()
	s.Require().NoError(s.store.Create(s.ctx, obs))

	found, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(obs.ID, found.ID)
	s.Equal(obs.OwnerID, found.OwnerID)
	s.Equal(models.StatusReadyForReview, found.Status)
	s.Require().Len(found.Suggestions, 1)
	s.Equal(domain.SpeciesID("A"), found.Suggestions[0].SpeciesID)
	s.Equal("Harz", found.Location.Label)
	s.Nil(found.Confirmed)
}

func (s *PostgresStoreSuite) TestExecuteGuardsTransitions() {
	obs := s.newReadyObservation()
	s.Require().NoError(s.store.Create(s.ctx, obs))

	now := time.Now().UTC()
	updated, err := s.store.Execute(s.ctx, obs.ID,
		func(o *models.Observation) error { return o.CanTransitionTo(models.StatusConfirmed) },
		func(o *models.Observation) {
			o.ApplyConfirmation(models.Confirmation{SpeciesID: "A", Confidence: 0.9, IsNewForUser: true}, now)
		})
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, updated.Status)
	s.Require().NotNil(updated.Confirmed)

	// A second confirmation attempt must fail validation and change nothing.
	_, err = s.store.Execute(s.ctx, obs.ID,
		func(o *models.Observation) error { return o.CanTransitionTo(models.StatusConfirmed) },
		func(o *models.Observation) {})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleTransition))

	found, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, found.Status)
}

func (s *PostgresStoreSuite) TestHasConfirmedSpecies() {
	obs := s.newReadyObservation()
	s.Require().NoError(s.store.Create(s.ctx, obs))

	has, err := s.store.HasConfirmedSpecies(s.ctx, s.owner, "A")
	s.Require().NoError(err)
	s.False(has)

	now := time.Now().UTC()
	_, err = s.store.Execute(s.ctx, obs.ID,
		func(o *models.Observation) error { return o.CanTransitionTo(models.StatusConfirmed) },
		func(o *models.Observation) {
			o.ApplyConfirmation(models.Confirmation{SpeciesID: "A", Confidence: 0.9, IsNewForUser: true}, now)
		})
	s.Require().NoError(err)

	has, err = s.store.HasConfirmedSpecies(s.ctx, s.owner, "A")
	s.Require().NoError(err)
	s.True(has)

	has, err = s.store.HasConfirmedSpecies(s.ctx, domain.AccountID(uuid.New()), "A")
	s.Require().NoError(err)
	s.False(has)
}

func (s *PostgresStoreSuite) TestListByOwnerFilters() {
	obs := s.newReadyObservation()
	s.Require().NoError(s.store.Create(s.ctx, obs))

	got, err := s.store.ListByOwner(s.ctx, s.owner, Query{
		Statuses: []models.Status{models.StatusReadyForReview},
		Search:   "admiral",
		Sort:     SortCreatedDesc,
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(obs.ID, got[0].ID)

	got, err = s.store.ListByOwner(s.ctx, s.owner, Query{
		Statuses: []models.Status{models.StatusSaved},
	})
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresStoreSuite) TestPurge() {
	obs := s.newReadyObservation()
	s.Require().NoError(s.store.Create(s.ctx, obs))

	s.Require().NoError(s.store.Purge(s.ctx, obs.ID))
	_, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Purge(s.ctx, obs.ID), sentinel.ErrNotFound)
}
