package store

import (
	"context"
	"sync"

	"fieldbook/internal/profile/models"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/platform/sentinel"
)

// InMemory is the map-backed profile store for tests and local development.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[domain.AccountID]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[domain.AccountID]*models.Profile)}
}

func (s *InMemory) Save(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[profile.AccountID]; ok {
		existing.DisplayName = profile.DisplayName
		existing.UpdatedAt = profile.UpdatedAt
		return nil
	}
	s.profiles[profile.AccountID] = profile.Clone()
	return nil
}

func (s *InMemory) FindByAccount(_ context.Context, accountID domain.AccountID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return profile.Clone(), nil
}

func (s *InMemory) Execute(_ context.Context, accountID domain.AccountID,
	mutate func(*models.Profile) error) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	candidate := profile.Clone()
	if err := mutate(candidate); err != nil {
		return nil, err
	}
	s.profiles[accountID] = candidate
	return candidate.Clone(), nil
}
