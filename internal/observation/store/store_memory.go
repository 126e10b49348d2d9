package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldbook/internal/observation/models"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/platform/sentinel"
)

// InMemory implements Store with a mutex-guarded map. It is the development
// and test default; production uses the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.ObservationID]*models.Observation
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[domain.ObservationID]*models.Observation)}
}

func (s *InMemory) Create(_ context.Context, obs *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[obs.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[obs.ID] = obs.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ObservationID) (*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return obs.Clone(), nil
}

// Execute holds the store lock across validate and mutate so the check and
// the change are one atomic step.
func (s *InMemory) Execute(_ context.Context, id domain.ObservationID,
	validate func(*models.Observation) error,
	mutate func(*models.Observation)) (*models.Observation, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	obs, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(obs.Clone()); err != nil {
		return nil, err
	}
	mutate(obs)
	return obs.Clone(), nil
}

func (s *InMemory) HasConfirmedSpecies(_ context.Context, owner domain.AccountID, species domain.SpeciesID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.records {
		if obs.OwnerID != owner {
			continue
		}
		if obs.Status != models.StatusConfirmed && obs.Status != models.StatusSaved {
			continue
		}
		if obs.Confirmed != nil && obs.Confirmed.SpeciesID == species {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner domain.AccountID, q Query) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[models.Status]bool, len(q.Statuses))
	for _, st := range q.Statuses {
		statuses[st] = true
	}

	var out []*models.Observation
	for _, obs := range s.records {
		if obs.OwnerID != owner || !statuses[obs.Status] {
			continue
		}
		if q.Category != nil && !matchesCategory(obs, *q.Category) {
			continue
		}
		if q.Search != "" && !matchesSearch(obs, q.Search) {
			continue
		}
		out = append(out, obs.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.Sort == SortCreatedDesc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Purge(_ context.Context, id domain.ObservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *InMemory) ListStuckAnalyzing(_ context.Context, updatedBefore time.Time) ([]domain.ObservationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []domain.ObservationID
	for _, obs := range s.records {
		if obs.Status == models.StatusAnalyzing && obs.UpdatedAt.Before(updatedBefore) {
			ids = append(ids, obs.ID)
		}
	}
	return ids, nil
}

// matchesCategory checks the confirmed species first, falling back to the top
// suggestion, so in-flight and archived records filter consistently.
func matchesCategory(obs *models.Observation, category domain.Category) bool {
	if obs.Confirmed != nil {
		if s, ok := obs.SuggestionFor(obs.Confirmed.SpeciesID); ok {
			return s.Category == category
		}
	}
	for _, s := range obs.Suggestions {
		if s.Category == category {
			return true
		}
	}
	return false
}

func matchesSearch(obs *models.Observation, search string) bool {
	needle := strings.ToLower(search)
	for _, s := range obs.Suggestions {
		if strings.Contains(strings.ToLower(s.DisplayName), needle) ||
			strings.Contains(strings.ToLower(s.ScientificName), needle) {
			return true
		}
	}
	return false
}
