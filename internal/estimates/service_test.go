package estimates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/taxrates"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type state struct {
	estimates map[int64]Estimate
	invoices  map[int64]invoices.Invoice
	seqs      map[string]numbering.Sequence
	audits    []shared.AuditLog
	nextID    int64
}

func (s state) clone() state {
	c := state{
		estimates: make(map[int64]Estimate, len(s.estimates)),
		invoices:  make(map[int64]invoices.Invoice, len(s.invoices)),
		seqs:      make(map[string]numbering.Sequence, len(s.seqs)),
		audits:    append([]shared.AuditLog(nil), s.audits...),
		nextID:    s.nextID,
	}
	for k, v := range s.estimates {
		c.estimates[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.seqs {
		c.seqs[k] = v
	}
	return c
}

// mockRepository commits a transaction's staged state only when the
// callback returns nil, like a real rollback.
type mockRepository struct {
	state
	failInvoiceInsert error
	failSetStatus     error
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: state{
		estimates: map[int64]Estimate{},
		invoices:  map[int64]invoices.Invoice{},
		seqs:      map[string]numbering.Sequence{},
		nextID:    1,
	}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := m.state.clone()
	if err := fn(ctx, &mockTx{st: &staged, repo: m}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *mockRepository) Get(_ context.Context, companyID, id int64) (Estimate, error) {
	e, ok := m.estimates[id]
	if !ok || e.CompanyID != companyID {
		return Estimate{}, ErrNotFound
	}
	for _, inv := range m.invoices {
		if inv.EstimateID != nil && *inv.EstimateID == id {
			invoiceID := inv.ID
			e.InvoiceID = &invoiceID
		}
	}
	return e, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64, _ documents.ListFilter) ([]Estimate, int, error) {
	all, _ := m.All(ctx, companyID)
	return all, len(all), nil
}

func (m *mockRepository) All(_ context.Context, companyID int64) ([]Estimate, error) {
	var out []Estimate
	for id := int64(1); id < m.nextID; id++ {
		if e, ok := m.estimates[id]; ok && e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepository) ExpireBefore(_ context.Context, day time.Time) (int64, error) {
	var n int64
	for id, e := range m.estimates {
		if (e.Status == StatusDraft || e.Status == StatusSent) && e.ValidUntil != nil && e.ValidUntil.Before(day) {
			e.Status = StatusExpired
			m.estimates[id] = e
			n++
		}
	}
	return n, nil
}

type mockTx struct {
	st   *state
	repo *mockRepository
}

func seqKey(companyID int64, t numbering.DocType) string {
	return fmt.Sprintf("%d:%s", companyID, t)
}

func (t *mockTx) Lock(_ context.Context, companyID int64, docType numbering.DocType) (numbering.Sequence, error) {
	seq, ok := t.st.seqs[seqKey(companyID, docType)]
	if !ok {
		seq = numbering.Sequence{CompanyID: companyID, DocType: docType, Prefix: numbering.DefaultPrefix(docType), NextNumber: 1}
	}
	return seq, nil
}

func (t *mockTx) Save(_ context.Context, seq numbering.Sequence) error {
	t.st.seqs[seqKey(seq.CompanyID, seq.DocType)] = seq
	return nil
}

func (t *mockTx) Insert(_ context.Context, e *Estimate) error {
	e.ID = t.st.nextID
	t.st.nextID++
	t.st.estimates[e.ID] = *e
	return nil
}

func (t *mockTx) LockEstimate(_ context.Context, companyID, id int64) (Estimate, error) {
	e, ok := t.st.estimates[id]
	if !ok || e.CompanyID != companyID {
		return Estimate{}, ErrNotFound
	}
	return e, nil
}

func (t *mockTx) Lines(_ context.Context, id int64) ([]ledger.Line, error) {
	return append([]ledger.Line(nil), t.st.estimates[id].Lines...), nil
}

func (t *mockTx) Update(_ context.Context, e *Estimate) error {
	t.st.estimates[e.ID] = *e
	return nil
}

func (t *mockTx) SetStatus(_ context.Context, companyID, id int64, status Status) error {
	if t.repo.failSetStatus != nil {
		return t.repo.failSetStatus
	}
	e, ok := t.st.estimates[id]
	if !ok || e.CompanyID != companyID {
		return ErrNotFound
	}
	e.Status = status
	t.st.estimates[id] = e
	return nil
}

func (t *mockTx) Delete(_ context.Context, companyID, id int64) error {
	if _, err := t.LockEstimate(context.Background(), companyID, id); err != nil {
		return err
	}
	delete(t.st.estimates, id)
	return nil
}

func (t *mockTx) InsertInvoice(_ context.Context, inv *invoices.Invoice) error {
	if t.repo.failInvoiceInsert != nil {
		return t.repo.failInvoiceInsert
	}
	inv.ID = 1000 + int64(len(t.st.invoices))
	t.st.invoices[inv.ID] = *inv
	return nil
}

func (t *mockTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	t.st.audits = append(t.st.audits, log)
	return nil
}

type fakeCustomers map[int64]contacts.Contact

func (f fakeCustomers) Resolve(ctx context.Context, id int64, kind contacts.Kind) (contacts.Contact, error) {
	identity, err := shared.RequireIdentity(ctx)
	if err != nil {
		return contacts.Contact{}, err
	}
	c, ok := f[id]
	if !ok || c.CompanyID != identity.CompanyID {
		return contacts.Contact{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	if c.Kind != kind {
		return contacts.Contact{}, shared.NewValidationError("customer_id", "must reference a customer")
	}
	return c, nil
}

type fakeRates map[int64]taxrates.TaxRate

func (f fakeRates) Resolve(_ context.Context, id int64) (taxrates.TaxRate, error) {
	r, ok := f[id]
	if !ok {
		return taxrates.TaxRate{}, fmt.Errorf("%w: tax rate %d", shared.ErrNotFound, id)
	}
	return r, nil
}

var fixedNow = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	customers := fakeCustomers{
		10: {ID: 10, CompanyID: 1, Kind: contacts.KindCustomer, Name: "Acme"},
		11: {ID: 11, CompanyID: 1, Kind: contacts.KindVendor, Name: "Paper Co"},
		20: {ID: 20, CompanyID: 2, Kind: contacts.KindCustomer, Name: "Other tenant"},
	}
	rates := fakeRates{3: {ID: 3, CompanyID: 1, Name: "GST", RatePercent: decimal.NewFromInt(15)}}
	svc := NewService(repo, customers, rates, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func ctxFor(companyID int64) context.Context {
	return shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 5, CompanyID: companyID})
}

func amt(s string) ledger.Amount {
	return ledger.NewAmount(decimal.RequireFromString(s))
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func request() Request {
	rateID := int64(3)
	return Request{
		CustomerID:   10,
		EstimateDate: "2024-05-01",
		ValidUntil:   "2024-05-31",
		Notes:        "Net 30",
		PricingRequest: documents.PricingRequest{
			DiscountAmount: amt("10"),
			TaxRateID:      &rateID,
		},
		Lines: []documents.LineRequest{
			{ItemNumber: "D-1", Description: "Design", Quantity: amt("2"), UnitPrice: amt("50")},
			{Description: "Hosting", Quantity: amt("1"), UnitPrice: amt("30")},
		},
	}
}

func mustCreate(t *testing.T, svc *Service) Estimate {
	t.Helper()
	est, err := svc.Create(ctxFor(1), request())
	require.NoError(t, err)
	return est
}

func TestCreateUsesSequence(t *testing.T) {
	svc, repo := newTestService()
	repo.seqs[seqKey(1, numbering.DocEstimate)] = numbering.Sequence{CompanyID: 1, DocType: numbering.DocEstimate, Prefix: "EST", NextNumber: 7}

	est := mustCreate(t, svc)
	assert.Equal(t, "EST-007", est.Number)
	assert.Equal(t, StatusDraft, est.Status)
	assertAmount(t, "130", est.Subtotal)
	assertAmount(t, "18", est.TotalTax)
	assertAmount(t, "138", est.TotalAmount)
	assert.Equal(t, int64(8), repo.seqs[seqKey(1, numbering.DocEstimate)].NextNumber)
}

func TestCreateValidation(t *testing.T) {
	svc, repo := newTestService()

	vendor := request()
	vendor.CustomerID = 11
	_, err := svc.Create(ctxFor(1), vendor)
	require.ErrorIs(t, err, shared.ErrValidation)

	foreign := request()
	foreign.CustomerID = 20
	_, err = svc.Create(ctxFor(1), foreign)
	require.ErrorIs(t, err, shared.ErrNotFound)

	backwards := request()
	backwards.ValidUntil = "2024-04-01"
	_, err = svc.Create(ctxFor(1), backwards)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), request())
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	assert.Empty(t, repo.estimates)
	assert.Empty(t, repo.seqs)
}

func TestConvertCreatesInvoiceOnce(t *testing.T) {
	svc, repo := newTestService()
	est := mustCreate(t, svc)

	conv, err := svc.Convert(ctxFor(1), est.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", conv.InvoiceNumber)

	inv := repo.invoices[conv.InvoiceID]
	assert.Equal(t, invoices.KindSales, inv.Kind)
	assert.Equal(t, invoices.StatusDraft, inv.Status)
	require.NotNil(t, inv.EstimateID)
	assert.Equal(t, est.ID, *inv.EstimateID)
	assert.Equal(t, int64(10), inv.ContactID)
	assert.Equal(t, "Net 30", inv.Notes)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)
	assertAmount(t, "138", inv.TotalAmount)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "D-1", inv.Lines[0].ItemNumber)
	assert.Equal(t, "Hosting", inv.Lines[1].Description)
	assertAmount(t, "100", inv.Lines[0].Total)

	got, err := svc.Get(ctxFor(1), est.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConverted, got.Status)
	require.NotNil(t, got.InvoiceID)
	assert.Equal(t, conv.InvoiceID, *got.InvoiceID)

	_, err = svc.Convert(ctxFor(1), est.ID)
	require.ErrorIs(t, err, ErrAlreadyConverted)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, repo.invoices, 1)
	assert.Equal(t, int64(2), repo.seqs[seqKey(1, numbering.DocSalesInvoice)].NextNumber)
}

func TestConvertRejectsClosedEstimates(t *testing.T) {
	for _, status := range []string{"declined", "expired"} {
		t.Run(status, func(t *testing.T) {
			svc, repo := newTestService()
			est := mustCreate(t, svc)
			_, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: status})
			require.NoError(t, err)

			_, err = svc.Convert(ctxFor(1), est.ID)
			require.ErrorIs(t, err, ErrInvalidState)
			assert.Empty(t, repo.invoices)
			assert.Equal(t, Status(status), repo.estimates[est.ID].Status)
		})
	}
}

func TestClosedEstimatesCannotBeReopened(t *testing.T) {
	for _, closed := range []string{"declined", "expired"} {
		for _, target := range []string{"draft", "sent", "accepted", "declined", "expired"} {
			if target == closed {
				continue
			}
			t.Run(closed+" to "+target, func(t *testing.T) {
				svc, repo := newTestService()
				est := mustCreate(t, svc)
				_, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: closed})
				require.NoError(t, err)
				audits := len(repo.audits)

				_, err = svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: target})
				require.ErrorIs(t, err, ErrInvalidState)
				assert.Equal(t, Status(closed), repo.estimates[est.ID].Status)
				assert.Len(t, repo.audits, audits)

				_, err = svc.Convert(ctxFor(1), est.ID)
				require.ErrorIs(t, err, ErrInvalidState)
				assert.Empty(t, repo.invoices)
			})
		}
	}

	svc, _ := newTestService()
	est := mustCreate(t, svc)
	_, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "declined"})
	require.NoError(t, err)
	got, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "declined"})
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, got.Status)
}

func TestConvertAllowedFromOpenStatuses(t *testing.T) {
	for _, status := range []string{"draft", "sent", "accepted"} {
		t.Run(status, func(t *testing.T) {
			svc, _ := newTestService()
			est := mustCreate(t, svc)
			_, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: status})
			require.NoError(t, err)
			_, err = svc.Convert(ctxFor(1), est.ID)
			require.NoError(t, err)
		})
	}
}

func TestConvertRollsBackOnFailure(t *testing.T) {
	cases := map[string]func(*mockRepository){
		"invoice insert": func(m *mockRepository) { m.failInvoiceInsert = errors.New("connection reset") },
		"status update":  func(m *mockRepository) { m.failSetStatus = errors.New("connection reset") },
	}
	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService()
			est := mustCreate(t, svc)
			inject(repo)

			_, err := svc.Convert(ctxFor(1), est.ID)
			require.Error(t, err)

			assert.Empty(t, repo.invoices)
			assert.Equal(t, StatusDraft, repo.estimates[est.ID].Status)
			_, consumed := repo.seqs[seqKey(1, numbering.DocSalesInvoice)]
			assert.False(t, consumed)

			repo.failInvoiceInsert, repo.failSetStatus = nil, nil
			conv, err := svc.Convert(ctxFor(1), est.ID)
			require.NoError(t, err)
			assert.Equal(t, "INV-001", conv.InvoiceNumber)
		})
	}
}

func TestConvertedEstimateIsFrozen(t *testing.T) {
	svc, _ := newTestService()
	est := mustCreate(t, svc)
	_, err := svc.Convert(ctxFor(1), est.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctxFor(1), est.ID, request())
	require.ErrorIs(t, err, ErrAlreadyConverted)
	require.ErrorIs(t, svc.Delete(ctxFor(1), est.ID), ErrAlreadyConverted)
	_, err = svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "draft"})
	require.ErrorIs(t, err, ErrAlreadyConverted)
	_, err = svc.ImportLines(ctxFor(1), est.ID, strings.NewReader("description,quantity\nX,1\n"))
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestStatusCannotBeSetToConverted(t *testing.T) {
	svc, _ := newTestService()
	est := mustCreate(t, svc)

	_, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "converted"})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "won"})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.ChangeStatus(ctxFor(1), est.ID, StatusRequest{Status: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}

func TestEstimatesAreCompanyScoped(t *testing.T) {
	svc, repo := newTestService()
	est := mustCreate(t, svc)

	_, err := svc.Get(ctxFor(2), est.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Convert(ctxFor(2), est.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, repo.invoices)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, repo := newTestService()
	est := mustCreate(t, svc)

	req := request()
	req.TaxRateID = nil
	req.DiscountType = "percentage"
	req.DiscountAmount = amt("50")
	updated, err := svc.Update(ctxFor(1), est.ID, req)
	require.NoError(t, err)
	assert.Equal(t, est.Number, updated.Number)
	assertAmount(t, "65", updated.TotalAmount)

	require.NoError(t, svc.Delete(ctxFor(1), est.ID))
	assert.Empty(t, repo.estimates)
}

func TestImportLines(t *testing.T) {
	svc, _ := newTestService()
	est := mustCreate(t, svc)

	body := "Item No,Description,Qty,Unit Price,Sales Tax\n" +
		"A-1,Widget,3,10,4.5\n" +
		",,,\n" +
		",,5,5\n" +
		"B-2,,1,abc,\n"
	result, err := svc.ImportLines(ctxFor(1), est.ID, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Estimate.Lines, 2)
	assertAmount(t, "34.5", result.Estimate.Lines[0].Total)
	assertAmount(t, "0", result.Estimate.Lines[1].Total)
	assertAmount(t, "34.5", result.Estimate.Subtotal)

	_, err = svc.ImportLines(ctxFor(1), est.ID, strings.NewReader("description\n\n"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestImportLinesAppliesLineRules(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"negative quantity": {"description,quantity,unit_price\nRefund,-5,100\n", "lines[0].quantity"},
		"long item number":  {"item_number,description,quantity\n" + strings.Repeat("X", 65) + ",Widget,1\n", "lines[0].item_number"},
		"long description":  {"description,quantity\n" + strings.Repeat("d", 1001) + ",1\n", "lines[0].description"},
		"long unit":         {"description,uom,quantity\nWidget," + strings.Repeat("u", 33) + ",1\n", "lines[0].uom"},
		"oversized amount":  {"description,quantity,unit_price\nWidget,1,1000000000000\n", "lines[0].unit_price"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService()
			est := mustCreate(t, svc)

			_, err := svc.ImportLines(ctxFor(1), est.ID, strings.NewReader(tc.body))
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)

			stored := repo.estimates[est.ID]
			require.Len(t, stored.Lines, 2)
			assertAmount(t, "138", stored.TotalAmount)
		})
	}
}

func TestExpireOverdue(t *testing.T) {
	svc, repo := newTestService()
	create := func(validUntil string) Estimate {
		req := request()
		req.ValidUntil = validUntil
		est, err := svc.Create(ctxFor(1), req)
		require.NoError(t, err)
		return est
	}
	old := create("2024-05-05")
	sent := create("2024-05-09")
	_, err := svc.ChangeStatus(ctxFor(1), sent.ID, StatusRequest{Status: "sent"})
	require.NoError(t, err)
	accepted := create("2024-05-05")
	_, err = svc.ChangeStatus(ctxFor(1), accepted.ID, StatusRequest{Status: "accepted"})
	require.NoError(t, err)
	fresh := create("2024-05-10")
	open := create("")

	n, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, StatusExpired, repo.estimates[old.ID].Status)
	assert.Equal(t, StatusExpired, repo.estimates[sent.ID].Status)
	assert.Equal(t, StatusAccepted, repo.estimates[accepted.ID].Status)
	assert.Equal(t, StatusDraft, repo.estimates[fresh.ID].Status)
	assert.Equal(t, StatusDraft, repo.estimates[open.ID].Status)
}
