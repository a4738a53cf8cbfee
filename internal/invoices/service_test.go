package invoices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/taxrates"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

type state struct {
	invoices  map[int64]Invoice
	allocated map[int64]decimal.Decimal
	seqs      map[string]numbering.Sequence
	audits    []shared.AuditLog
	nextID    int64
}

func (s state) clone() state {
	c := state{
		invoices:  make(map[int64]Invoice, len(s.invoices)),
		allocated: make(map[int64]decimal.Decimal, len(s.allocated)),
		seqs:      make(map[string]numbering.Sequence, len(s.seqs)),
		audits:    append([]shared.AuditLog(nil), s.audits...),
		nextID:    s.nextID,
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.allocated {
		c.allocated[k] = v
	}
	for k, v := range s.seqs {
		c.seqs[k] = v
	}
	return c
}

// mockRepository stages every transaction on a copy and keeps it only when
// the callback succeeds.
type mockRepository struct {
	state
	failAudit error
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: state{
		invoices:  map[int64]Invoice{},
		allocated: map[int64]decimal.Decimal{},
		seqs:      map[string]numbering.Sequence{},
		nextID:    1,
	}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := m.state.clone()
	if err := fn(ctx, &mockTx{st: &staged, failAudit: m.failAudit}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *mockRepository) Get(_ context.Context, companyID int64, kind Kind, id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.CompanyID != companyID || inv.Kind != kind {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64, kind Kind, _ documents.ListFilter) ([]Invoice, int, error) {
	all, _ := m.All(ctx, companyID, kind)
	return all, len(all), nil
}

func (m *mockRepository) All(_ context.Context, companyID int64, kind Kind) ([]Invoice, error) {
	var out []Invoice
	for id := int64(1); id < m.nextID; id++ {
		inv, ok := m.invoices[id]
		if ok && inv.CompanyID == companyID && inv.Kind == kind {
			out = append(out, inv)
		}
	}
	return out, nil
}

type mockTx struct {
	st        *state
	failAudit error
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

func (t *mockTx) Insert(_ context.Context, inv *Invoice) error {
	inv.ID = t.st.nextID
	t.st.nextID++
	t.st.invoices[inv.ID] = *inv
	return nil
}

func (t *mockTx) LockInvoice(_ context.Context, companyID int64, kind Kind, id int64) (Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok || inv.CompanyID != companyID || inv.Kind != kind {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (t *mockTx) Update(_ context.Context, inv *Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	t.st.invoices[inv.ID] = *inv
	return nil
}

func (t *mockTx) SetStatus(_ context.Context, companyID, id int64, status Status) error {
	inv, ok := t.st.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return ErrNotFound
	}
	inv.Status = status
	t.st.invoices[id] = inv
	return nil
}

func (t *mockTx) AllocatedTotal(_ context.Context, id int64) (decimal.Decimal, error) {
	return t.st.allocated[id], nil
}

func (t *mockTx) Delete(_ context.Context, companyID, id int64) error {
	inv, ok := t.st.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return ErrNotFound
	}
	delete(t.st.invoices, id)
	return nil
}

func (t *mockTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	if t.failAudit != nil {
		return t.failAudit
	}
	t.st.audits = append(t.st.audits, log)
	return nil
}

type fakeContacts map[int64]contacts.Contact

func (f fakeContacts) Resolve(ctx context.Context, id int64, kind contacts.Kind) (contacts.Contact, error) {
	identity, err := shared.RequireIdentity(ctx)
	if err != nil {
		return contacts.Contact{}, err
	}
	c, ok := f[id]
	if !ok || c.CompanyID != identity.CompanyID {
		return contacts.Contact{}, fmt.Errorf("%w: contact %d", shared.ErrNotFound, id)
	}
	if c.Kind != kind {
		return contacts.Contact{}, shared.NewValidationError("contact_id", "must reference a "+string(kind))
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

func ctxFor(companyID int64) context.Context {
	return shared.ContextWithIdentity(context.Background(), shared.Identity{UserID: 7, CompanyID: companyID})
}

func amt(s string) ledger.Amount {
	return ledger.NewAmount(decimal.RequireFromString(s))
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	people := fakeContacts{
		10: {ID: 10, CompanyID: 1, Kind: contacts.KindCustomer, Name: "Acme"},
		11: {ID: 11, CompanyID: 1, Kind: contacts.KindVendor, Name: "Paper Co"},
		12: {ID: 12, CompanyID: 1, Kind: contacts.KindCustomer, Name: "Globex"},
		20: {ID: 20, CompanyID: 2, Kind: contacts.KindCustomer, Name: "Other tenant"},
	}
	rates := fakeRates{3: {ID: 3, CompanyID: 1, Name: "GST", RatePercent: decimal.NewFromInt(15)}}
	return NewService(repo, people, rates, nil, nil), repo
}

func salesRequest() Request {
	rateID := int64(3)
	return Request{
		ContactID:   10,
		InvoiceDate: "2024-03-01",
		DueDate:     "2024-03-31",
		PricingRequest: documents.PricingRequest{
			DiscountAmount: amt("10"),
			DiscountType:   "amount",
			TaxRateID:      &rateID,
		},
		Lines: []documents.LineRequest{
			{Description: "Design", Quantity: amt("2"), UnitPrice: amt("50")},
			{Description: "Hosting", Quantity: amt("1"), UnitPrice: amt("30")},
		},
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCreateNumbersAndPricesInvoice(t *testing.T) {
	svc, repo := newTestService()

	first, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-001", first.Number)
	assert.Equal(t, StatusDraft, first.Status)
	assertAmount(t, "130", first.Subtotal)
	assertAmount(t, "18", first.TotalTax)
	assertAmount(t, "138", first.TotalAmount)
	require.Len(t, first.Lines, 2)
	assertAmount(t, "100", first.Lines[0].Total)

	second, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-002", second.Number)

	purchase := salesRequest()
	purchase.ContactID = 11
	bill, err := svc.Create(ctxFor(1), KindPurchase, purchase)
	require.NoError(t, err)
	assert.Equal(t, "PINV-001", bill.Number)

	require.Len(t, repo.audits, 3)
	assert.Equal(t, "invoice.created", repo.audits[0].Action)
}

func TestCreateFailureDoesNotConsumeNumber(t *testing.T) {
	svc, repo := newTestService()
	repo.failAudit = errors.New("disk full")

	_, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.Error(t, err)
	assert.Empty(t, repo.invoices)

	repo.failAudit = nil
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-001", inv.Number)
}

func TestCreateRejectsInvalidReferences(t *testing.T) {
	svc, _ := newTestService()

	foreign := salesRequest()
	foreign.ContactID = 20
	_, err := svc.Create(ctxFor(1), KindSales, foreign)
	require.ErrorIs(t, err, shared.ErrNotFound)

	vendorOnSales := salesRequest()
	vendorOnSales.ContactID = 11
	_, err = svc.Create(ctxFor(1), KindSales, vendorOnSales)
	require.ErrorIs(t, err, shared.ErrValidation)

	early := salesRequest()
	early.DueDate = "2024-02-01"
	_, err = svc.Create(ctxFor(1), KindSales, early)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "due_date")

	empty := salesRequest()
	empty.Lines = nil
	_, err = svc.Create(ctxFor(1), KindSales, empty)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), KindSales, salesRequest())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestInvoicesAreCompanyScoped(t *testing.T) {
	svc, _ := newTestService()
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	_, err = svc.Get(ctxFor(2), KindSales, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Get(ctxFor(1), KindPurchase, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctxFor(2), KindSales, inv.ID), shared.ErrNotFound)
}

func TestUpdateReplacesLinesAndGuardsPaidAmount(t *testing.T) {
	svc, repo := newTestService()
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	req := salesRequest()
	req.TaxRateID = nil
	req.DiscountAmount = amt("0")
	req.Lines = []documents.LineRequest{{ItemNumber: "SKU-1", Quantity: amt("3"), UnitPrice: amt("20")}}
	updated, err := svc.Update(ctxFor(1), KindSales, inv.ID, req)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, updated.Number)
	require.Len(t, updated.Lines, 1)
	assertAmount(t, "60", updated.TotalAmount)

	repo.allocated[inv.ID] = decimal.NewFromInt(50)
	req.Lines[0].Quantity = amt("2")
	_, err = svc.Update(ctxFor(1), KindSales, inv.ID, req)
	require.ErrorIs(t, err, ErrBelowAllocated)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateKeepsContactOncePaid(t *testing.T) {
	svc, repo := newTestService()
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	repo.allocated[inv.ID] = decimal.NewFromInt(100)
	moved := salesRequest()
	moved.ContactID = 12
	_, err = svc.Update(ctxFor(1), KindSales, inv.ID, moved)
	require.ErrorIs(t, err, ErrContactLocked)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, int64(10), repo.invoices[inv.ID].ContactID)

	same := salesRequest()
	same.Notes = "Thanks"
	updated, err := svc.Update(ctxFor(1), KindSales, inv.ID, same)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.ContactID)

	delete(repo.allocated, inv.ID)
	updated, err = svc.Update(ctxFor(1), KindSales, inv.ID, moved)
	require.NoError(t, err)
	assert.Equal(t, int64(12), updated.ContactID)
}

func TestStatusTransitions(t *testing.T) {
	svc, repo := newTestService()
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	sent, err := svc.ChangeStatus(ctxFor(1), KindSales, inv.ID, StatusRequest{Status: "sent"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)

	_, err = svc.ChangeStatus(ctxFor(1), KindSales, inv.ID, StatusRequest{Status: "paid"})
	require.ErrorIs(t, err, shared.ErrValidation)

	repo.allocated[inv.ID] = decimal.NewFromInt(10)
	_, err = svc.ChangeStatus(ctxFor(1), KindSales, inv.ID, StatusRequest{Status: "void"})
	require.ErrorIs(t, err, ErrHasAllocations)

	delete(repo.allocated, inv.ID)
	void, err := svc.ChangeStatus(ctxFor(1), KindSales, inv.ID, StatusRequest{Status: "void"})
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, void.Status)

	_, err = svc.ChangeStatus(ctxFor(1), KindSales, inv.ID, StatusRequest{Status: "draft"})
	require.ErrorIs(t, err, ErrVoid)
	_, err = svc.Update(ctxFor(1), KindSales, inv.ID, salesRequest())
	require.ErrorIs(t, err, ErrVoid)
}

func TestDeleteRefusedWhileAllocated(t *testing.T) {
	svc, repo := newTestService()
	inv, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	repo.allocated[inv.ID] = decimal.NewFromInt(5)
	require.ErrorIs(t, svc.Delete(ctxFor(1), KindSales, inv.ID), ErrHasAllocations)
	assert.Contains(t, repo.invoices, inv.ID)

	delete(repo.allocated, inv.ID)
	require.NoError(t, svc.Delete(ctxFor(1), KindSales, inv.ID))
	assert.NotContains(t, repo.invoices, inv.ID)
	assert.Equal(t, "invoice.deleted", repo.audits[len(repo.audits)-1].Action)
}

func TestExport(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(ctxFor(1), KindSales, salesRequest())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctxFor(1), KindSales, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "number,contact_id,invoice_date,due_date,status,subtotal,total_tax,total_amount", lines[0])
	assert.Equal(t, "INV-001,10,2024-03-01,2024-03-31,draft,130.00,18.00,138.00", lines[1])
}
