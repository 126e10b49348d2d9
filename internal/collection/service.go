// Package collection is the read side of the archive: owner-scoped queries
// over observation records with the default visibility policy applied.
package collection

import (
	"context"

	obsmodels "fieldbook/internal/observation/models"
	obsstore "fieldbook/internal/observation/store"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Query selects and orders an account's collection.
type Query struct {
	Category *domain.Category
	Sort     obsstore.SortOrder
	Search   string
	// IncludeNonTerminal adds in-flight records (uploaded, analyzing,
	// ready_for_review, confirmed) to the saved ones. Deleted and failed
	// records are never listed.
	IncludeNonTerminal bool
}

// Service answers collection queries.
type Service struct {
	observations obsstore.Store
}

func New(observations obsstore.Store) *Service {
	return &Service{observations: observations}
}

// List returns the session account's observations, newest first unless the
// query asks for ascending order.
func (s *Service) List(ctx context.Context, sess session.Session, q Query) ([]*obsmodels.Observation, error) {
	if q.Category != nil && !q.Category.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported category %q", *q.Category)
	}

	statuses := []obsmodels.Status{obsmodels.StatusSaved}
	if q.IncludeNonTerminal {
		statuses = append(statuses,
			obsmodels.StatusUploaded,
			obsmodels.StatusAnalyzing,
			obsmodels.StatusReadyForReview,
			obsmodels.StatusConfirmed,
		)
	}

	sort := q.Sort
	if sort == "" {
		sort = obsstore.SortCreatedDesc
	}

	records, err := s.observations.ListByOwner(ctx, sess.AccountID, obsstore.Query{
		Statuses: statuses,
		Category: q.Category,
		Sort:     sort,
		Search:   q.Search,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list collection")
	}
	return records, nil
}
