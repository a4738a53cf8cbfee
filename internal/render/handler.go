package render

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/report"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the document download routes. ?format=html returns
// the HTML the PDF is printed from.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/estimates/{id}/pdf", h.Estimate)
	r.Get("/invoices/{kind}/{id}/pdf", h.Invoice)
}

func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		doc, _, err := h.service.EstimateDocument(r.Context(), id)
		h.writeHTML(w, doc, err)
		return
	}
	pdf, filename, err := h.service.EstimatePDF(r.Context(), id)
	h.writePDF(w, pdf, filename, err)
}

func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	kind, err := invoices.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		doc, _, err := h.service.InvoiceDocument(r.Context(), kind, id)
		h.writeHTML(w, doc, err)
		return
	}
	pdf, filename, err := h.service.InvoicePDF(r.Context(), kind, id)
	h.writePDF(w, pdf, filename, err)
}

func (h *Handler) writeHTML(w http.ResponseWriter, doc Document, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := h.service.HTML(doc)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) writePDF(w http.ResponseWriter, pdf []byte, filename string, err error) {
	var statusErr *report.StatusError
	switch {
	case errors.Is(err, report.ErrNotConfigured):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "pdf rendering is not configured")
		return
	case errors.As(err, &statusErr):
		h.logger.Error("pdf conversion failed", slog.Int("status", statusErr.Status), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "pdf conversion failed")
		return
	case err != nil:
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Attachment(w, "application/pdf", filename, pdf)
}
