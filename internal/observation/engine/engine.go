// Package engine drives observation lifecycle transitions. Every status
// change goes through the store's Execute guard, so the state machine in
// models is enforced even under concurrent mediator callbacks and user
// actions.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fieldbook/internal/observation/metrics"
	"fieldbook/internal/observation/models"
	"fieldbook/internal/observation/store"
	"fieldbook/internal/recognition"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/sentinel"
)

// Outcome is the mediator's answer for one observation: either a ranked
// suggestion list or a failure.
type Outcome struct {
	Suggestions []models.Suggestion
	Failed      bool
}

// Duplicate and out-of-order callbacks are resolved inside Execute's
// validate step; these markers distinguish "skip silently" from real errors.
var (
	errDuplicateCallback = errors.New("duplicate recognition callback")
	errRecordDeleted     = errors.New("observation deleted before callback")
)

// Engine owns the observation lifecycle. All writes funnel through it.
type Engine struct {
	store     store.Store
	publisher recognition.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func New(st store.Store, pub recognition.Publisher, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:     st,
		publisher: pub,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("fieldbook/observation/engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new observation for the session's account, hands its
// image to the recognition mediator, and advances it to analyzing once the
// request is accepted. A publish failure leaves the record in uploaded so
// the client can retry or discard it.
func (e *Engine) Create(ctx context.Context, sess session.Session, image models.ImageRef, location models.Location) (*models.Observation, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Create")
	defer span.End()

	obs, err := models.New(sess.AccountID, image, location, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.store.Create(ctx, obs); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist observation")
	}
	span.SetAttributes(attribute.String("observation.id", obs.ID.String()))

	req := recognition.Request{
		ObservationID: obs.ID.String(),
		OwnerID:       obs.OwnerID.String(),
		ImageRef:      obs.Image.StorageRef,
	}
	if err := e.publisher.PublishRequest(ctx, req); err != nil {
		e.logger.WarnContext(ctx, "recognition request not accepted, observation stays uploaded",
			"observation_id", obs.ID, "error", err)
		return obs, nil
	}

	updated, err := e.store.Execute(ctx, obs.ID,
		func(o *models.Observation) error { return o.CanTransitionTo(models.StatusAnalyzing) },
		func(o *models.Observation) { o.ApplyAnalyzing(e.now()) })
	if err != nil {
		// The record was created and the request is in flight; a racing discard
		// is the only way to get here. Report the record as we last saw it.
		e.logger.WarnContext(ctx, "could not advance fresh observation to analyzing",
			"observation_id", obs.ID, "error", err)
		return obs, nil
	}
	e.metrics.ObserveTransition(models.StatusUploaded.String(), models.StatusAnalyzing.String())
	return updated, nil
}

// Get returns one observation owned by the session's account.
//
// Errors: CodeNotFound when the record does not exist or belongs to another
// account. Ownership mismatches are indistinguishable from absence on
// purpose.
func (e *Engine) Get(ctx context.Context, sess session.Session, id domain.ObservationID) (*models.Observation, error) {
	obs, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	if obs.OwnerID != sess.AccountID {
		return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	return obs, nil
}

// ApplyRecognition processes one mediator callback. It is idempotent: a
// repeated callback for an observation that already absorbed this outcome is
// acknowledged without any change, and a callback for a deleted record is
// dropped.
//
// Errors: CodeInvalidInput for a malformed suggestion list,
// CodeStaleTransition when the record is in a state that can no longer
// accept results, CodeNotFound for an unknown observation.
func (e *Engine) ApplyRecognition(ctx context.Context, id domain.ObservationID, outcome Outcome) error {
	ctx, span := e.tracer.Start(ctx, "engine.ApplyRecognition",
		trace.WithAttributes(attribute.String("observation.id", id.String()), attribute.Bool("failed", outcome.Failed)))
	defer span.End()

	target := models.StatusReadyForReview
	if outcome.Failed {
		target = models.StatusFailed
	} else if err := models.ValidateSuggestions(outcome.Suggestions); err != nil {
		return err
	}

	_, err := e.store.Execute(ctx, id,
		func(o *models.Observation) error {
			switch {
			case o.Status == target:
				return errDuplicateCallback
			case o.Status == models.StatusDeleted:
				return errRecordDeleted
			default:
				return o.CanTransitionTo(target)
			}
		},
		func(o *models.Observation) {
			if outcome.Failed {
				o.ApplyFailure(e.now())
			} else {
				o.ApplySuggestions(outcome.Suggestions, e.now())
			}
		})

	switch {
	case err == nil:
		e.metrics.ObserveTransition(models.StatusAnalyzing.String(), target.String())
		if outcome.Failed {
			e.metrics.ObserveRecognitionOutcome("failed")
		} else {
			e.metrics.ObserveRecognitionOutcome("ready")
		}
		return nil
	case errors.Is(err, errDuplicateCallback):
		e.metrics.ObserveRecognitionOutcome("duplicate")
		e.logger.InfoContext(ctx, "duplicate recognition callback ignored", "observation_id", id)
		return nil
	case errors.Is(err, errRecordDeleted):
		e.metrics.ObserveRecognitionOutcome("ignored")
		e.logger.InfoContext(ctx, "recognition callback for deleted observation ignored", "observation_id", id)
		return nil
	case dErrors.HasCode(err, dErrors.CodeStaleTransition):
		e.metrics.StaleTransitionsTotal.Inc()
		return err
	default:
		return e.mapStoreErr(err)
	}
}

// Discard soft-deletes an observation owned by the session's account. Every
// non-failed status accepts deletion; failed records are purged instead.
//
// Errors: CodeNotFound for absent or foreign records, CodeStaleTransition
// when the record cannot be deleted from its current status.
func (e *Engine) Discard(ctx context.Context, sess session.Session, id domain.ObservationID) error {
	ctx, span := e.tracer.Start(ctx, "engine.Discard",
		trace.WithAttributes(attribute.String("observation.id", id.String())))
	defer span.End()

	var from models.Status
	_, err := e.store.Execute(ctx, id,
		func(o *models.Observation) error {
			if o.OwnerID != sess.AccountID {
				return dErrors.New(dErrors.CodeNotFound, "observation not found")
			}
			from = o.Status
			return o.CanTransitionTo(models.StatusDeleted)
		},
		func(o *models.Observation) { o.ApplyDeletion(e.now()) })
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStaleTransition) {
			e.metrics.StaleTransitionsTotal.Inc()
			return err
		}
		return e.mapStoreErr(err)
	}
	e.metrics.ObserveTransition(from.String(), models.StatusDeleted.String())
	return nil
}

// Purge hard-removes a record the user wants to redo. It is restricted to
// statuses where nothing has been confirmed yet, so no stats contribution can
// ever dangle.
//
// Errors: CodeNotFound for absent or foreign records, CodeConflict when the
// record has progressed past the purgeable statuses.
func (e *Engine) Purge(ctx context.Context, sess session.Session, id domain.ObservationID) error {
	obs, err := e.Get(ctx, sess, id)
	if err != nil {
		return err
	}
	switch obs.Status {
	case models.StatusUploaded, models.StatusReadyForReview, models.StatusFailed:
	default:
		return dErrors.Newf(dErrors.CodeConflict, "cannot purge observation in status %s", obs.Status)
	}
	if err := e.store.Purge(ctx, id); err != nil {
		return e.mapStoreErr(err)
	}
	e.logger.InfoContext(ctx, "observation purged", "observation_id", id, "status", obs.Status)
	return nil
}

func (e *Engine) mapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "observation store")
}
