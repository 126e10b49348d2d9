package store

import (
	"context"

	"fieldbook/internal/profile/models"
	"fieldbook/pkg/domain"
)

// Store persists account profiles.
//
// Execute runs mutate while holding the profile's lock so stats increments
// from concurrent confirmations never lose updates. A mutate error aborts the
// write and is returned unchanged.
type Store interface {
	// Save upserts the profile. The session synchronizer uses it to project
	// identity data; on an existing row only the identity-owned fields
	// (display name) are overwritten; locally owned stats, onboarding and
	// settings are preserved.
	Save(ctx context.Context, profile *models.Profile) error
	FindByAccount(ctx context.Context, accountID domain.AccountID) (*models.Profile, error)
	Execute(ctx context.Context, accountID domain.AccountID,
		mutate func(*models.Profile) error) (*models.Profile, error)
}
