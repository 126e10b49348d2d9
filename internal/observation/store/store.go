package store

import (
	"context"
	"time"

	"fieldbook/internal/observation/models"
	"fieldbook/pkg/domain"
)

// SortOrder selects the createdAt ordering for collection queries.
type SortOrder string

const (
	SortCreatedAsc  SortOrder = "created_asc"
	SortCreatedDesc SortOrder = "created_desc"
)

// Query filters an owner's observations. Statuses must be non-empty; the
// collection service owns the default-visibility policy.
type Query struct {
	Statuses []models.Status
	Category *domain.Category
	Sort     SortOrder
	// Search matches case-insensitively against suggestion display and
	// scientific names. Empty means no text filter.
	Search string
}

// Store persists observation records.
//
// Execute runs validate-then-mutate while holding the record's lock (a mutex
// in memory, SELECT FOR UPDATE in Postgres), so a concurrent writer can never
// interleave between the status check and the status change. A validate error
// aborts the mutation and is returned unchanged.
type Store interface {
	Create(ctx context.Context, obs *models.Observation) error
	FindByID(ctx context.Context, id domain.ObservationID) (*models.Observation, error)
	Execute(ctx context.Context, id domain.ObservationID,
		validate func(*models.Observation) error,
		mutate func(*models.Observation)) (*models.Observation, error)
	// HasConfirmedSpecies reports whether the owner has any record in status
	// confirmed or saved whose confirmation matches the species.
	HasConfirmedSpecies(ctx context.Context, owner domain.AccountID, species domain.SpeciesID) (bool, error)
	ListByOwner(ctx context.Context, owner domain.AccountID, q Query) ([]*models.Observation, error)
	// Purge hard-removes a record. Only the engine's retake path calls it.
	Purge(ctx context.Context, id domain.ObservationID) error
	// ListStuckAnalyzing returns ids of records still analyzing whose last
	// update is older than the cutoff. The deadline sweeper consumes it.
	ListStuckAnalyzing(ctx context.Context, updatedBefore time.Time) ([]domain.ObservationID, error)
}
