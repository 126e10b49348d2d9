// Package handler exposes the session view over HTTP: the /me endpoints
// backed by the synchronizer.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	profmodels "fieldbook/internal/profile/models"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/httputil"
	"fieldbook/pkg/requestcontext"
)

// ViewResponse is the wire shape of the session view.
type ViewResponse struct {
	Identity  *IdentityResponse `json:"identity"`
	Profile   *ProfileResponse  `json:"profile"`
	IsLoading bool              `json:"is_loading"`
}

type IdentityResponse struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

type ProfileResponse struct {
	DisplayName        string           `json:"display_name"`
	Stats              StatsResponse    `json:"stats"`
	OnboardingComplete bool             `json:"onboarding_complete"`
	Settings           SettingsResponse `json:"settings"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type StatsResponse struct {
	ObservationCount int `json:"observation_count"`
	SpeciesCount     int `json:"species_count"`
}

type SettingsResponse struct {
	LocationEnabled bool   `json:"location_enabled"`
	Language        string `json:"language"`
}

// SettingsRequest is the PUT /me/settings payload.
type SettingsRequest struct {
	LocationEnabled bool   `json:"location_enabled"`
	Language        string `json:"language"`
}

func fromView(v session.View) ViewResponse {
	resp := ViewResponse{IsLoading: v.IsLoading}
	if v.Identity != nil {
		resp.Identity = &IdentityResponse{
			AccountID:   v.Identity.AccountID.String(),
			DisplayName: v.Identity.DisplayName,
		}
	}
	if v.Profile != nil {
		resp.Profile = &ProfileResponse{
			DisplayName:        v.Profile.DisplayName,
			OnboardingComplete: v.Profile.OnboardingComplete,
			Stats: StatsResponse{
				ObservationCount: v.Profile.Stats.ObservationCount,
				SpeciesCount:     v.Profile.Stats.SpeciesCount,
			},
			Settings: SettingsResponse{
				LocationEnabled: v.Profile.Settings.LocationEnabled,
				Language:        v.Profile.Settings.Language.String(),
			},
			UpdatedAt: v.Profile.UpdatedAt,
		}
	}
	return resp
}

// Handler serves the /me endpoints from the synchronizer's session view.
type Handler struct {
	syncer *session.Synchronizer
	logger *slog.Logger
}

func New(syncer *session.Synchronizer, logger *slog.Logger) *Handler {
	return &Handler{syncer: syncer, logger: logger}
}

// Register mounts the authenticated session endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
	r.Post("/me/onboarding", h.HandleCompleteOnboarding)
	r.Put("/me/settings", h.HandleUpdateSettings)
}

// guard rejects callers whose bearer token names a different account than the
// one the synchronizer currently tracks.
func (h *Handler) guard(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, err := session.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return session.Session{}, false
	}
	v := h.syncer.Current()
	if v.Identity != nil && v.Identity.AccountID != sess.AccountID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "session belongs to a different account"))
		return session.Session{}, false
	}
	return sess, true
}

// HandleMe handles GET /me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard(w, r); !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromView(h.syncer.Current()))
}

// HandleCompleteOnboarding handles POST /me/onboarding.
func (h *Handler) HandleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.guard(w, r); !ok {
		return
	}
	if err := h.syncer.CompleteOnboarding(ctx); err != nil {
		h.logger.ErrorContext(ctx, "onboarding completion failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromView(h.syncer.Current()))
}

// HandleUpdateSettings handles PUT /me/settings.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if _, ok := h.guard(w, r); !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SettingsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	language, err := domain.ParseLanguageCode(req.Language)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	settings := profmodels.Settings{LocationEnabled: req.LocationEnabled, Language: language}
	if err := h.syncer.UpdateSettings(ctx, settings); err != nil {
		h.logger.ErrorContext(ctx, "settings update failed",
			"request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromView(h.syncer.Current()))
}
