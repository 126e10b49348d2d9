package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fieldbook/internal/collection"
	"fieldbook/internal/discovery"
	"fieldbook/internal/observation/engine"
	"fieldbook/internal/observation/models"
	obsstore "fieldbook/internal/observation/store"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/httputil"
	"fieldbook/pkg/requestcontext"
)

// Engine drives observation lifecycle operations.
type Engine interface {
	Create(ctx context.Context, sess session.Session, image models.ImageRef, location models.Location) (*models.Observation, error)
	Get(ctx context.Context, sess session.Session, id domain.ObservationID) (*models.Observation, error)
	ApplyRecognition(ctx context.Context, id domain.ObservationID, outcome engine.Outcome) error
	Discard(ctx context.Context, sess session.Session, id domain.ObservationID) error
	Purge(ctx context.Context, sess session.Session, id domain.ObservationID) error
}

// Confirmer runs the discovery confirmation workflow.
type Confirmer interface {
	Confirm(ctx context.Context, sess session.Session, id domain.ObservationID, speciesID domain.SpeciesID) (*discovery.Result, error)
}

// Collection answers collection view queries.
type Collection interface {
	List(ctx context.Context, sess session.Session, q collection.Query) ([]*models.Observation, error)
}

// Handler wires observation endpoints to the engine and workflow services.
type Handler struct {
	engine     Engine
	confirmer  Confirmer
	collection Collection
	logger     *slog.Logger
}

func New(engine Engine, confirmer Confirmer, collection Collection, logger *slog.Logger) *Handler {
	return &Handler{
		engine:     engine,
		confirmer:  confirmer,
		collection: collection,
		logger:     logger,
	}
}

// Register mounts the authenticated observation endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/observations", h.HandleCreate)
	r.Get("/observations", h.HandleList)
	r.Get("/observations/{id}", h.HandleGet)
	r.Delete("/observations/{id}", h.HandleDiscard)
	r.Post("/observations/{id}/confirm", h.HandleConfirm)
}

// RegisterInternal mounts the mediator callback endpoint. The router guards
// it with the shared-secret middleware, not JWT auth.
func (h *Handler) RegisterInternal(r chi.Router) {
	r.Post("/internal/recognition/{id}/result", h.HandleRecognitionResult)
}

// HandleCreate handles POST /observations.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sess, err := session.FromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	obs, err := h.engine.Create(ctx, sess, req.Image(), req.Location())
	if err != nil {
		h.logger.ErrorContext(ctx, "observation creation failed",
			"request_id", requestID, "account_id", sess.AccountID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "observation created",
		"request_id", requestID,
		"observation_id", obs.ID,
		"status", obs.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromObservation(obs))
}

// HandleGet handles GET /observations/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := session.FromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.engine.Get(ctx, sess, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(obs))
}

// HandleList handles GET /observations with the collection query parameters
// category, sort, q and include_non_terminal.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := session.FromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := collection.Query{Search: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		q.Category = &category
	}
	switch r.URL.Query().Get("sort") {
	case "", "desc":
		q.Sort = obsstore.SortCreatedDesc
	case "asc":
		q.Sort = obsstore.SortCreatedAsc
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "sort must be asc or desc"))
		return
	}
	if raw := r.URL.Query().Get("include_non_terminal"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "include_non_terminal must be a boolean"))
			return
		}
		q.IncludeNonTerminal = include
	}

	records, err := h.collection.List(ctx, sess, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "collection query failed",
			"request_id", requestcontext.RequestID(ctx), "account_id", sess.AccountID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservations(records))
}

// HandleDiscard handles DELETE /observations/{id}. With ?purge=true the
// record is removed entirely instead of soft-deleted, for the retake flow.
func (h *Handler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := session.FromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	purge := r.URL.Query().Get("purge") == "true"
	if purge {
		err = h.engine.Purge(ctx, sess, id)
	} else {
		err = h.engine.Discard(ctx, sess, id)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "observation discarded",
		"request_id", requestcontext.RequestID(ctx), "observation_id", id, "purge", purge)
	w.WriteHeader(http.StatusNoContent)
}

// HandleConfirm handles POST /observations/{id}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sess, err := session.FromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfirmRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	speciesID, err := req.ParsedSpeciesID()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.confirmer.Confirm(ctx, sess, id, speciesID)
	if err != nil {
		h.logger.ErrorContext(ctx, "confirmation failed",
			"request_id", requestID,
			"observation_id", id,
			"species_id", speciesID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "suggestion confirmed",
		"request_id", requestID,
		"observation_id", id,
		"species_id", speciesID,
		"new_species", result.IsNewSpecies,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromConfirmResult(result))
}

// HandleRecognitionResult handles POST /internal/recognition/{id}/result.
func (h *Handler) HandleRecognitionResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecognitionResultRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	suggestions, err := req.ParsedSuggestions()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.engine.ApplyRecognition(ctx, id, engine.Outcome{Suggestions: suggestions, Failed: req.Failed})
	if err != nil {
		h.logger.ErrorContext(ctx, "recognition result rejected",
			"request_id", requestID, "observation_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "recognition result applied",
		"request_id", requestID, "observation_id", id, "failed", req.Failed)
	w.WriteHeader(http.StatusNoContent)
}
