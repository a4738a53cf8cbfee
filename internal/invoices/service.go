package invoices

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/csvio"
	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Contacts resolves the customer or vendor an invoice is addressed to.
type Contacts interface {
	Resolve(ctx context.Context, id int64, kind contacts.Kind) (contacts.Contact, error)
}

// Service implements invoice use cases for the signed-in company.
type Service struct {
	repo     Repository
	contacts Contacts
	rates    documents.TaxRates
	metrics  *observability.Domain
	logger   *slog.Logger
}

// NewService constructs an invoice service. metrics may be nil.
func NewService(repo Repository, contacts Contacts, rates documents.TaxRates, metrics *observability.Domain, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, contacts: contacts, rates: rates, metrics: metrics, logger: logger}
}

// Create prices the request and stores a draft invoice numbered from the
// kind's sequence in the same transaction.
func (s *Service) Create(ctx context.Context, kind Kind, req Request) (Invoice, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := s.build(ctx, kind, req)
	if err != nil {
		return Invoice{}, err
	}
	inv.CompanyID = id.CompanyID
	inv.Status = StatusDraft
	inv.CreatedBy = id.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issued, err := numbering.Issue(ctx, tx, id.CompanyID, kind.DocType())
		if err != nil {
			return err
		}
		inv.Number = issued.Number
		if err := tx.Insert(ctx, &inv); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "invoice.created", inv.ID, map[string]any{
			"kind": kind, "number": inv.Number, "total_amount": inv.TotalAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.DocumentCreated(string(kind.DocType()))
	s.logger.Info("invoice created",
		slog.Int64("company_id", id.CompanyID),
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.Number))
	return inv, nil
}

// Update replaces the header and lines of an invoice. Void invoices are
// read-only, the new total may not drop below what has been paid and a paid
// invoice keeps its contact.
func (s *Service) Update(ctx context.Context, kind Kind, invoiceID int64, req Request) (Invoice, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Invoice{}, err
	}
	next, err := s.build(ctx, kind, req)
	if err != nil {
		return Invoice{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, id.CompanyID, kind, invoiceID)
		if err != nil {
			return err
		}
		if current.Status == StatusVoid {
			return ErrVoid
		}
		paid, err := tx.AllocatedTotal(ctx, invoiceID)
		if err != nil {
			return err
		}
		if next.TotalAmount.LessThan(paid) {
			return fmt.Errorf("%w (paid %s)", ErrBelowAllocated, paid.StringFixed(2))
		}
		if paid.IsPositive() && next.ContactID != current.ContactID {
			return ErrContactLocked
		}
		current.ContactID = next.ContactID
		current.InvoiceDate = next.InvoiceDate
		current.DueDate = next.DueDate
		current.Notes = next.Notes
		current.Pricing = next.Pricing
		current.Lines = next.Lines
		if err := tx.Update(ctx, &current); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "invoice.updated", invoiceID, map[string]any{
			"total_amount": current.TotalAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, kind, invoiceID)
}

// Get returns an invoice of the caller's company with its lines.
func (s *Service) Get(ctx context.Context, kind Kind, invoiceID int64) (Invoice, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, kind, invoiceID)
}

// List returns a page of invoice headers.
func (s *Service) List(ctx context.Context, kind Kind, filter documents.ListFilter) ([]Invoice, int, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" {
		if _, err := ParseStatus(filter.Status); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, id.CompanyID, kind, filter)
}

// Delete removes an invoice and its lines. Invoices with allocations must be
// unallocated first.
func (s *Service) Delete(ctx context.Context, kind Kind, invoiceID int64) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id.CompanyID, kind, invoiceID)
		if err != nil {
			return err
		}
		paid, err := tx.AllocatedTotal(ctx, invoiceID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return ErrHasAllocations
		}
		if err := tx.Delete(ctx, id.CompanyID, invoiceID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "invoice.deleted", invoiceID, map[string]any{"number": inv.Number}))
	})
}

// ChangeStatus moves an invoice between draft and sent, or voids it. A void
// invoice never changes again and an invoice carrying payments cannot be
// voided.
func (s *Service) ChangeStatus(ctx context.Context, kind Kind, invoiceID int64, req StatusRequest) (Invoice, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Invoice{}, err
	}
	target, err := ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return Invoice{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id.CompanyID, kind, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return ErrVoid
		}
		if inv.Status == target {
			return nil
		}
		if target == StatusVoid {
			paid, err := tx.AllocatedTotal(ctx, invoiceID)
			if err != nil {
				return err
			}
			if paid.IsPositive() {
				return ErrHasAllocations
			}
		}
		if err := tx.SetStatus(ctx, id.CompanyID, invoiceID, target); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "invoice.status_changed", invoiceID, map[string]any{
			"from": inv.Status, "to": target,
		}))
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, kind, invoiceID)
}

var exportHeader = []string{"number", "contact_id", "invoice_date", "due_date", "status", "subtotal", "total_tax", "total_amount"}

// Export writes every invoice header of kind as CSV.
func (s *Service) Export(ctx context.Context, kind Kind, w io.Writer) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	all, err := s.repo.All(ctx, id.CompanyID, kind)
	if err != nil {
		return err
	}
	rows := make([][]string, len(all))
	for i, inv := range all {
		due := ""
		if inv.DueDate != nil {
			due = inv.DueDate.Format(documents.DateLayout)
		}
		rows[i] = []string{
			inv.Number,
			strconv.FormatInt(inv.ContactID, 10),
			inv.InvoiceDate.Format(documents.DateLayout),
			due,
			string(inv.Status),
			csvio.Money(inv.Subtotal),
			csvio.Money(inv.TotalTax),
			csvio.Money(inv.TotalAmount),
		}
	}
	return csvio.WriteRecords(w, exportHeader, rows)
}

func (s *Service) build(ctx context.Context, kind Kind, req Request) (Invoice, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Invoice{}, err
	}
	invoiceDate, err := documents.ParseDate("invoice_date", req.InvoiceDate)
	if err != nil {
		return Invoice{}, err
	}
	dueDate, err := documents.ParseOptionalDate("due_date", req.DueDate)
	if err != nil {
		return Invoice{}, err
	}
	if dueDate != nil && dueDate.Before(invoiceDate) {
		return Invoice{}, shared.NewValidationError("due_date", "must not be before the invoice date")
	}
	if err := documents.ValidateLines(req.Lines); err != nil {
		return Invoice{}, err
	}
	if _, err := s.contacts.Resolve(ctx, req.ContactID, kind.ContactKind()); err != nil {
		return Invoice{}, err
	}
	priced, err := documents.Price(ctx, s.rates, req.PricingRequest, documents.Inputs(req.Lines))
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Kind:        kind,
		ContactID:   req.ContactID,
		InvoiceDate: invoiceDate,
		DueDate:     dueDate,
		Notes:       strings.TrimSpace(req.Notes),
		Pricing:     priced.Pricing,
		Lines:       priced.Lines,
	}, nil
}

func auditEntry(id shared.Identity, action string, invoiceID int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		CompanyID: id.CompanyID,
		ActorID:   id.UserID,
		Action:    action,
		Entity:    "invoice",
		EntityID:  strconv.FormatInt(invoiceID, 10),
		Meta:      meta,
		At:        time.Now().UTC(),
	}
}
