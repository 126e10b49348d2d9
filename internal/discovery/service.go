// Package discovery implements the confirmation workflow: the user picks one
// of the mediator's suggestions, the observation advances to saved, and the
// profile's collection stats absorb exactly one increment per record.
//
// All work for one account is serialized behind a keyed mutex, so two
// confirmations of the same species can never both count as a new discovery.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	obsmodels "fieldbook/internal/observation/models"
	obsstore "fieldbook/internal/observation/store"
	profmodels "fieldbook/internal/profile/models"
	profstore "fieldbook/internal/profile/store"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/keylock"
	"fieldbook/pkg/platform/sentinel"
)

// Result reports a completed confirmation.
type Result struct {
	Observation  *obsmodels.Observation
	Stats        profmodels.Stats
	IsNewSpecies bool
}

// Service runs the confirmation workflow.
type Service struct {
	observations obsstore.Store
	profiles     profstore.Store
	accountLock  *keylock.KeyedMutex
	metrics      *Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

func New(observations obsstore.Store, profiles profstore.Store, m *Metrics, logger *slog.Logger) *Service {
	return &Service{
		observations: observations,
		profiles:     profiles,
		accountLock:  keylock.New(),
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("fieldbook/discovery"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Confirm records the user's species selection for a reviewable observation
// and drives it to saved, applying the profile stats exactly once.
//
// The workflow is atomic per account: while one confirmation runs, no other
// confirmation for the same account can observe or produce intermediate
// state. Calling Confirm again after a partial failure resumes the stats
// application for the already-confirmed species.
//
// Errors: CodeNotFound for absent or foreign observations,
// CodeConfirmationConflict when the species is not among the suggestions or a
// retry names a different species than the recorded confirmation,
// CodeRecognitionFailed when recognition already failed for the record,
// CodeStaleTransition when the record is otherwise not reviewable, and
// CodeStatsApplyIncomplete when the final save failed and the stats were
// rolled back.
func (s *Service) Confirm(ctx context.Context, sess session.Session, id domain.ObservationID, speciesID domain.SpeciesID) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "discovery.Confirm", trace.WithAttributes(
		attribute.String("observation.id", id.String()),
		attribute.String("species.id", speciesID.String()),
	))
	defer span.End()

	unlock := s.accountLock.Lock(sess.AccountID.String())
	defer unlock()

	obs, err := s.observations.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	if obs.OwnerID != sess.AccountID {
		return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}

	// A retry after a partial failure picks up where the first attempt
	// stopped: the record is confirmed but its stats were never applied.
	if obs.Status == obsmodels.StatusConfirmed && !obs.StatsApplied {
		if obs.Confirmed.SpeciesID != speciesID {
			s.metrics.ConfirmationsTotal.WithLabelValues("conflict").Inc()
			return nil, dErrors.Newf(dErrors.CodeConfirmationConflict,
				"observation is already confirmed as %s", obs.Confirmed.SpeciesID)
		}
		s.metrics.ConfirmationsTotal.WithLabelValues("resumed").Inc()
		return s.applyAndSave(ctx, sess, obs, obs.Confirmed.IsNewForUser)
	}

	if obs.Status == obsmodels.StatusFailed {
		s.metrics.ConfirmationsTotal.WithLabelValues("rejected").Inc()
		return nil, dErrors.New(dErrors.CodeRecognitionFailed, "recognition failed for this observation")
	}
	if err := obs.CanTransitionTo(obsmodels.StatusConfirmed); err != nil {
		s.metrics.ConfirmationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	suggestion, ok := obs.SuggestionFor(speciesID)
	if !ok {
		s.metrics.ConfirmationsTotal.WithLabelValues("conflict").Inc()
		return nil, dErrors.New(dErrors.CodeConfirmationConflict, "species is not among the suggestions")
	}

	// Checked before the record itself becomes confirmed, and stable for the
	// rest of the workflow because the account lock is held.
	already, err := s.observations.HasConfirmedSpecies(ctx, sess.AccountID, speciesID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	isNew := !already

	confirmed, err := s.observations.Execute(ctx, id,
		func(o *obsmodels.Observation) error { return o.CanTransitionTo(obsmodels.StatusConfirmed) },
		func(o *obsmodels.Observation) {
			o.ApplyConfirmation(obsmodels.Confirmation{
				SpeciesID:    speciesID,
				Confidence:   suggestion.Confidence,
				IsNewForUser: isNew,
			}, s.now())
		})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStaleTransition) {
			s.metrics.ConfirmationsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		return nil, s.mapStoreErr(err)
	}

	return s.applyAndSave(ctx, sess, confirmed, isNew)
}

// applyAndSave runs the second half of the workflow: profile stats first,
// then the confirmed → saved transition. If the save fails the stats are
// reverted under the still-held account lock, leaving the record confirmed
// with StatsApplied false so a retry can resume.
func (s *Service) applyAndSave(ctx context.Context, sess session.Session, obs *obsmodels.Observation, isNew bool) (*Result, error) {
	profile, err := s.profiles.Execute(ctx, sess.AccountID, func(p *profmodels.Profile) error {
		p.ApplyStats(isNew, s.now())
		return p.CheckInvariants()
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeProfileLoadFailed, "profile not available for stats update")
		}
		return nil, s.mapStoreErr(err)
	}

	saved, err := s.saveOnce(ctx, obs.ID)
	if err != nil {
		s.compensate(ctx, sess, obs, isNew)
		s.metrics.ConfirmationsTotal.WithLabelValues("incomplete").Inc()
		return nil, dErrors.Wrap(err, dErrors.CodeStatsApplyIncomplete,
			"confirmation saved partially, stats rolled back")
	}

	if isNew {
		s.metrics.NewSpeciesTotal.Inc()
	}
	s.metrics.ConfirmationsTotal.WithLabelValues("saved").Inc()
	s.logger.InfoContext(ctx, "discovery confirmed",
		"observation_id", saved.ID,
		"species_id", saved.Confirmed.SpeciesID,
		"new_species", isNew,
	)
	return &Result{Observation: saved, Stats: profile.Stats, IsNewSpecies: isNew}, nil
}

// saveOnce drives confirmed to saved, absorbing one transient store failure
// with an immediate retry. Coded errors are not retried: a stale transition
// means the record left confirmed concurrently and retrying cannot help.
func (s *Service) saveOnce(ctx context.Context, id domain.ObservationID) (*obsmodels.Observation, error) {
	save := func() (*obsmodels.Observation, error) {
		return s.observations.Execute(ctx, id,
			func(o *obsmodels.Observation) error { return o.CanTransitionTo(obsmodels.StatusSaved) },
			func(o *obsmodels.Observation) { o.ApplySaved(s.now()) })
	}
	saved, err := save()
	if err == nil {
		return saved, nil
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return nil, err
	}
	s.logger.WarnContext(ctx, "final save failed, retrying once", "observation_id", id, "error", err)
	return save()
}

func (s *Service) compensate(ctx context.Context, sess session.Session, obs *obsmodels.Observation, isNew bool) {
	s.metrics.CompensationsTotal.Inc()
	_, err := s.profiles.Execute(ctx, sess.AccountID, func(p *profmodels.Profile) error {
		return p.RevertStats(isNew, s.now())
	})
	if err != nil {
		// The lock is still held, so no other confirmation saw the inflated
		// stats; the revert itself failing leaves drift worth alerting on.
		s.logger.ErrorContext(ctx, "stats compensation failed",
			"observation_id", obs.ID, "account_id", sess.AccountID, "error", err)
	}
}

func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "discovery store")
}
