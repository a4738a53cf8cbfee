package invoices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type fakeBalances map[int64]ledger.Balance

func (f fakeBalances) Balance(_ context.Context, invoiceID int64) (ledger.Balance, error) {
	return f[invoiceID], nil
}

func newTestRouter(svc *Service, balances Balances, companyID int64) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithIdentity(req.Context(), shared.Identity{UserID: 7, CompanyID: companyID})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(nil, svc, balances).MountRoutes(r)
	return r
}

func TestHandlerCreateAndShow(t *testing.T) {
	svc, _ := newTestService()
	balances := fakeBalances{1: ledger.Settle(decimal.NewFromInt(138), decimal.NewFromInt(38))}
	router := newTestRouter(svc, balances, 1)

	body := `{"contact_id":10,"invoice_date":"2024-03-01","discount_amount":"10","tax_rate_id":3,
		"total_amount":"1",
		"lines":[{"description":"Design","quantity":"2","unit_price":"50","total":"999"},
		         {"description":"Hosting","quantity":1,"unit_price":"30"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/sales", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID          int64  `json:"id"`
		Number      string `json:"number"`
		TotalAmount string `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "INV-001", created.Number)
	assert.Equal(t, "138", created.TotalAmount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/sales/"+strconv.FormatInt(created.ID, 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var shown struct {
		Number         string `json:"number"`
		PaymentSummary struct {
			PaidAmount         string `json:"paid_amount"`
			OutstandingBalance string `json:"outstanding_balance"`
		} `json:"payment_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shown))
	assert.Equal(t, "38", shown.PaymentSummary.PaidAmount)
	assert.Equal(t, "100", shown.PaymentSummary.OutstandingBalance)
}

func TestHandlerErrors(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	other := newTestRouter(svc, nil, 2)
	rec := httptest.NewRecorder()
	other.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/sales/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	other.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/credit", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	own := newTestRouter(svc, nil, 1)
	rec = httptest.NewRecorder()
	own.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/sales/1/status", strings.NewReader(`{"status":"void"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	own.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/sales/1/status", strings.NewReader(`{"status":"sent"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	own.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/sales/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sales-invoices.csv")
}
