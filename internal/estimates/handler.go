package estimates

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

const maxImportBytes = 5 << 20

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/estimates", h.List)
	r.Post("/estimates", h.Create)
	r.Get("/estimates/export.csv", h.Export)
	r.Get("/estimates/{id}", h.Show)
	r.Put("/estimates/{id}", h.Update)
	r.Delete("/estimates/{id}", h.Delete)
	r.Post("/estimates/{id}/status", h.ChangeStatus)
	r.Post("/estimates/{id}/convert", h.Convert)
	r.Post("/estimates/{id}/lines/import", h.ImportLines)
	r.Get("/estimates/{id}/lines/export.csv", h.ExportLines)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := documents.FilterFromQuery(r.URL.Query(), "customer_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	estimates, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"estimates":  estimates,
		"pagination": shared.NewPagination(filter.Page, filter.Limit(), total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	est, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	est, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, est)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	est, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	est, err := h.service.ChangeStatus(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	conv, err := h.service.Convert(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/invoices/sales/"+strconv.FormatInt(conv.InvoiceID, 10))
	httpx.JSON(w, http.StatusCreated, conv)
}

// ImportLines accepts a raw text/csv body.
func (h *Handler) ImportLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.ImportLines(r.Context(), id, http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.CSV(w, "estimates.csv", buf.Bytes())
}

func (h *Handler) ExportLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.ExportLines(r.Context(), id, &buf); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.CSV(w, "estimate-"+strconv.FormatInt(id, 10)+"-lines.csv", buf.Bytes())
}
