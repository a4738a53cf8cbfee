package invoices

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Balances reports how much of an invoice has been paid.
type Balances interface {
	Balance(ctx context.Context, invoiceID int64) (ledger.Balance, error)
}

type Handler struct {
	logger   *slog.Logger
	service  *Service
	balances Balances
}

// NewHandler constructs the invoice handler. balances may be nil, in which
// case invoice detail responses carry no payment summary.
func NewHandler(logger *slog.Logger, service *Service, balances Balances) *Handler {
	return &Handler{logger: logger, service: service, balances: balances}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{kind}", h.List)
	r.Post("/invoices/{kind}", h.Create)
	r.Get("/invoices/{kind}/export.csv", h.Export)
	r.Get("/invoices/{kind}/{id}", h.Show)
	r.Put("/invoices/{kind}/{id}", h.Update)
	r.Delete("/invoices/{kind}/{id}", h.Delete)
	r.Post("/invoices/{kind}/{id}/status", h.ChangeStatus)
}

type detailView struct {
	Invoice
	PaymentSummary *ledger.Balance `json:"payment_summary,omitempty"`
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request, withID bool) (Kind, int64, bool) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return "", 0, false
	}
	if !withID {
		return kind, 0, true
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return "", 0, false
	}
	return kind, id, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := h.params(w, r, false)
	if !ok {
		return
	}
	filter, err := documents.FilterFromQuery(r.URL.Query(), "contact_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	invoices, total, err := h.service.List(r.Context(), kind, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invoices,
		"pagination": shared.NewPagination(filter.Page, filter.Limit(), total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r, true)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view := detailView{Invoice: inv}
	if h.balances != nil {
		balance, err := h.balances.Balance(r.Context(), inv.ID)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		view.PaymentSummary = &balance
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := h.params(w, r, false)
	if !ok {
		return
	}
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Create(r.Context(), kind, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r, true)
	if !ok {
		return
	}
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Update(r.Context(), kind, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r, true)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), kind, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.params(w, r, true)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.ChangeStatus(r.Context(), kind, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	kind, _, ok := h.params(w, r, false)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), kind, &buf); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.CSV(w, string(kind)+"-invoices.csv", buf.Bytes())
}
