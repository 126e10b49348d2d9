package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldbook/internal/species"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/platform/httputil"
	"fieldbook/pkg/requestcontext"
)

// Catalog looks up species reference entries.
type Catalog interface {
	FindByID(ctx context.Context, id domain.SpeciesID, lang domain.LanguageCode) (*species.Entry, error)
}

// Handler serves species reference lookups for suggestion and collection
// detail screens.
type Handler struct {
	catalog Catalog
	logger  *slog.Logger
}

func New(catalog Catalog, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

// Register mounts the authenticated species endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/species/{id}", h.HandleGet)
}

// HandleGet handles GET /species/{id}?lang=. The language defaults to
// English when absent.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseSpeciesID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lang := domain.LanguageEnglish
	if raw := r.URL.Query().Get("lang"); raw != "" {
		if lang, err = domain.ParseLanguageCode(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	entry, err := h.catalog.FindByID(ctx, id, lang)
	if err != nil {
		h.logger.WarnContext(ctx, "species lookup failed",
			"request_id", requestcontext.RequestID(ctx), "species_id", id, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}
