package audit

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/csvio"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
)

var exportHeader = []string{"at", "actor_id", "action", "entity", "entity_id", "meta"}

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.Timeline)
	r.Get("/audit/export.csv", h.Export)
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Timeline(r.Context(), FiltersFromQuery(r.URL.Query()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Export(r.Context(), FiltersFromQuery(r.URL.Query()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.Action,
			row.Entity,
			row.EntityID,
			string(row.Meta),
		})
	}
	var buf bytes.Buffer
	if err := csvio.WriteRecords(&buf, exportHeader, records); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.CSV(w, "audit.csv", buf.Bytes())
}
