package numbering

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
)

// Handler serves the numbering settings endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a numbering handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settings/numbering", h.List)
	r.Put("/settings/numbering/{docType}", h.Update)
}

type settingsView struct {
	Sequence
	Preview string `json:"preview"`
}

func toViews(seqs []Sequence) []settingsView {
	out := make([]settingsView, len(seqs))
	for i, s := range seqs {
		out[i] = settingsView{Sequence: s, Preview: s.Preview()}
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	seqs, err := h.service.Settings(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sequences": toViews(seqs)})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	docType, err := ParseDocType(chi.URLParam(r, "docType"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateSettingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	seq, err := h.service.UpdateSettings(r.Context(), docType, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViews([]Sequence{seq})[0])
}
