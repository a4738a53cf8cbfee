package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// maxAmount bounds payment and allocation amounts below the NUMERIC(18,2)
// column limit.
var maxAmount = decimal.New(1, 15)

// checkMoney requires a positive amount with at most two decimals.
func checkMoney(field string, d decimal.Decimal) error {
	switch {
	case !d.IsPositive():
		return shared.NewValidationError(field, "must be greater than zero")
	case !d.Equal(d.Round(2)):
		return shared.NewValidationError(field, "must have at most 2 decimal places")
	case d.GreaterThanOrEqual(maxAmount):
		return shared.NewValidationError(field, "is too large")
	}
	return nil
}

// Contacts resolves the payer or payee of a payment.
type Contacts interface {
	Resolve(ctx context.Context, id int64, kind contacts.Kind) (contacts.Contact, error)
}

// Service implements the payment allocation ledger for the signed-in company.
type Service struct {
	repo     Repository
	contacts Contacts
	metrics  *observability.Domain
	logger   *slog.Logger
}

// NewService constructs a payment service. metrics may be nil.
func NewService(repo Repository, contacts Contacts, metrics *observability.Domain, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, contacts: contacts, metrics: metrics, logger: logger}
}

// Record stores a payment and its initial allocations in one transaction.
// A non-empty idempotency key makes a repeated submission fail with a
// conflict instead of recording the payment twice.
func (s *Service) Record(ctx context.Context, req Request, idempotencyKey string) (Payment, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Payment{}, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" && !shared.ValidKey(idempotencyKey) {
		return Payment{}, shared.NewValidationError("idempotency_key", "must be a UUID")
	}
	p, err := s.build(ctx, req)
	if err != nil {
		return Payment{}, err
	}
	p.CompanyID = id.CompanyID
	p.CreatedBy = id.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if idempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, id.CompanyID, idempotencyKey); err != nil {
				return err
			}
		}
		if err := tx.Insert(ctx, &p); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, auditEntry(id, "payment.recorded", "payment", p.ID, map[string]any{
			"direction": p.Direction, "gross_amount": p.GrossAmount.StringFixed(2),
		})); err != nil {
			return err
		}
		for i, a := range req.Allocations {
			if _, err := s.allocate(ctx, tx, id, p, a); err != nil {
				return fmt.Errorf("allocations[%d]: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.logger.Info("payment recorded",
		slog.Int64("company_id", id.CompanyID),
		slog.Int64("payment_id", p.ID),
		slog.String("gross_amount", p.GrossAmount.StringFixed(2)),
		slog.Int("allocations", len(req.Allocations)))
	return s.Get(ctx, p.ID)
}

// Allocate assigns part of a payment to an invoice. The amount must fit both
// the payment's unallocated balance and the invoice's outstanding balance.
func (s *Service) Allocate(ctx context.Context, paymentID int64, req AllocationRequest) (Allocation, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Allocation{}, err
	}
	var created Allocation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayment(ctx, id.CompanyID, paymentID)
		if err != nil {
			return err
		}
		created, err = s.allocate(ctx, tx, id, p, req)
		return err
	})
	s.metrics.Allocation(observability.Result(err))
	if err != nil {
		return Allocation{}, err
	}
	return created, nil
}

func (s *Service) allocate(ctx context.Context, tx TxRepository, id shared.Identity, p Payment, req AllocationRequest) (Allocation, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Allocation{}, err
	}
	amount := req.Amount.Decimal
	if err := checkMoney("amount", amount); err != nil {
		return Allocation{}, err
	}
	inv, err := tx.LockInvoice(ctx, id.CompanyID, req.InvoiceID)
	if err != nil {
		return Allocation{}, err
	}
	if inv.Kind != p.Direction.InvoiceKind() {
		return Allocation{}, shared.NewValidationError("invoice_id",
			fmt.Sprintf("%s payments can only settle %s invoices", p.Direction, p.Direction.InvoiceKind()))
	}
	if inv.ContactID != p.ContactID {
		return Allocation{}, shared.NewValidationError("invoice_id", "invoice belongs to a different contact")
	}
	if inv.Status == invoices.StatusVoid {
		return Allocation{}, ErrInvalidState
	}

	paymentAllocated, err := tx.PaymentAllocated(ctx, p.ID)
	if err != nil {
		return Allocation{}, err
	}
	if remaining := ledger.Unallocated(p.GrossAmount, paymentAllocated); amount.GreaterThan(remaining) {
		return Allocation{}, fmt.Errorf("%w: payment has %s unallocated", ErrOverAllocation, remaining.StringFixed(2))
	}
	invoiceAllocated, err := tx.InvoiceAllocated(ctx, inv.ID)
	if err != nil {
		return Allocation{}, err
	}
	if outstanding := ledger.Settle(inv.TotalAmount, invoiceAllocated).OutstandingBalance; amount.GreaterThan(outstanding) {
		return Allocation{}, fmt.Errorf("%w: invoice %s has %s outstanding", ErrOverAllocation, inv.Number, outstanding.StringFixed(2))
	}

	a := Allocation{
		CompanyID:       id.CompanyID,
		PaymentID:       p.ID,
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.Number,
		AllocatedAmount: amount,
	}
	if err := tx.InsertAllocation(ctx, &a); err != nil {
		return Allocation{}, err
	}
	if err := tx.RecordAudit(ctx, auditEntry(id, "payment.allocated", "payment", p.ID, map[string]any{
		"allocation_id": a.ID, "invoice_id": inv.ID, "amount": amount.StringFixed(2),
	})); err != nil {
		return Allocation{}, err
	}
	return a, nil
}

// RemoveAllocation deletes an allocation of the caller's company.
func (s *Service) RemoveAllocation(ctx context.Context, allocationID int64) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.FindAllocation(ctx, id.CompanyID, allocationID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAllocation(ctx, id.CompanyID, allocationID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "payment.allocation_removed", "payment", a.PaymentID, map[string]any{
			"allocation_id": a.ID, "invoice_id": a.InvoiceID, "amount": a.AllocatedAmount.StringFixed(2),
		}))
	})
}

// Summary derives an invoice's paid and outstanding amounts from its
// allocation rows.
func (s *Service) Summary(ctx context.Context, invoiceID int64) (Summary, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Summary{}, err
	}
	inv, err := s.repo.Invoice(ctx, id.CompanyID, invoiceID)
	if err != nil {
		return Summary{}, err
	}
	allocs, err := s.repo.InvoiceAllocations(ctx, id.CompanyID, invoiceID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{InvoiceID: inv.ID, InvoiceNumber: inv.Number, Kind: inv.Kind, Allocations: allocs}
	sum.Balance = ledger.Settle(inv.TotalAmount, allocationAmounts(allocs)...)
	return sum, nil
}

// Balance is Summary without the allocation rows.
func (s *Service) Balance(ctx context.Context, invoiceID int64) (ledger.Balance, error) {
	sum, err := s.Summary(ctx, invoiceID)
	if err != nil {
		return ledger.Balance{}, err
	}
	return sum.Balance, nil
}

// Get returns a payment with its allocations.
func (s *Service) Get(ctx context.Context, paymentID int64) (Payment, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Payment{}, err
	}
	p, err := s.repo.Get(ctx, id.CompanyID, paymentID)
	if err != nil {
		return Payment{}, err
	}
	p.Allocated = ledger.Settle(p.GrossAmount, allocationAmounts(p.Allocations)...).PaidAmount
	p.Unallocated = ledger.Unallocated(p.GrossAmount, allocationAmounts(p.Allocations)...)
	return p, nil
}

// List returns a page of payments with their allocated totals.
func (s *Service) List(ctx context.Context, filter Filter) ([]Payment, int, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	out, total, err := s.repo.List(ctx, id.CompanyID, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Unallocated = ledger.Unallocated(out[i].GrossAmount, out[i].Allocated)
	}
	return out, total, nil
}

// Delete removes a payment together with its allocations.
func (s *Service) Delete(ctx context.Context, paymentID int64) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayment(ctx, id.CompanyID, paymentID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id.CompanyID, paymentID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "payment.deleted", "payment", paymentID, map[string]any{
			"gross_amount": p.GrossAmount.StringFixed(2),
		}))
	})
}

func (s *Service) build(ctx context.Context, req Request) (Payment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Payment{}, err
	}
	direction, err := ParseDirection(strings.TrimSpace(req.Direction))
	if err != nil {
		return Payment{}, err
	}
	date, err := documents.ParseDate("payment_date", req.PaymentDate)
	if err != nil {
		return Payment{}, err
	}
	if err := checkMoney("gross_amount", req.GrossAmount.Decimal); err != nil {
		return Payment{}, err
	}
	if _, err := s.contacts.Resolve(ctx, req.ContactID, direction.ContactKind()); err != nil {
		return Payment{}, err
	}
	return Payment{
		Direction:   direction,
		ContactID:   req.ContactID,
		PaymentDate: date,
		Method:      strings.TrimSpace(req.Method),
		Reference:   strings.TrimSpace(req.Reference),
		GrossAmount: req.GrossAmount.Decimal,
		Notes:       strings.TrimSpace(req.Notes),
	}, nil
}

func allocationAmounts(allocs []Allocation) []decimal.Decimal {
	out := make([]decimal.Decimal, len(allocs))
	for i, a := range allocs {
		out[i] = a.AllocatedAmount
	}
	return out
}

func auditEntry(id shared.Identity, action, entity string, entityID int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		CompanyID: id.CompanyID,
		ActorID:   id.UserID,
		Action:    action,
		Entity:    entity,
		EntityID:  strconv.FormatInt(entityID, 10),
		Meta:      meta,
		At:        time.Now().UTC(),
	}
}
