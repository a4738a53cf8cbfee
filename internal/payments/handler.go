package payments

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// IdempotencyHeader carries a client generated UUID for payment creation.
const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payments", h.List)
	r.Post("/payments", h.Create)
	r.Get("/payments/{id}", h.Show)
	r.Delete("/payments/{id}", h.Delete)
	r.Post("/payments/{id}/allocations", h.Allocate)
	r.Delete("/payments/allocations/{allocationID}", h.RemoveAllocation)
	r.Get("/invoices/{kind}/{id}/summary", h.Summary)
}

func filterFromQuery(q url.Values) (Filter, error) {
	f := Filter{PageRequest: shared.PageFromQuery(q)}
	if raw := strings.TrimSpace(q.Get("direction")); raw != "" {
		d, err := ParseDirection(raw)
		if err != nil {
			return Filter{}, err
		}
		f.Direction = d
	}
	if raw := strings.TrimSpace(q.Get("contact_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, shared.NewValidationError("contact_id", "must be a positive integer")
		}
		f.ContactID = id
	}
	var err error
	if f.From, err = documents.ParseOptionalDate("from", q.Get("from")); err != nil {
		return Filter{}, err
	}
	if f.To, err = documents.ParseOptionalDate("to", q.Get("to")); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"payments":   payments,
		"pagination": shared.NewPagination(filter.Page, filter.Limit(), total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Record(r.Context(), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
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

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req AllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	a, err := h.service.Allocate(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) RemoveAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "allocationID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.RemoveAllocation(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
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
	sum, err := h.service.Summary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if sum.Kind != kind {
		httpx.RespondError(w, h.logger, ErrInvoiceNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}
