package estimates

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
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Customers resolves the customer an estimate is addressed to.
type Customers interface {
	Resolve(ctx context.Context, id int64, kind contacts.Kind) (contacts.Contact, error)
}

type Service struct {
	repo      Repository
	customers Customers
	rates     documents.TaxRates
	metrics   *observability.Domain
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs an estimate service. metrics may be nil.
func NewService(repo Repository, customers Customers, rates documents.TaxRates, metrics *observability.Domain, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, customers: customers, rates: rates, metrics: metrics, logger: logger, now: time.Now}
}

// Create stores a draft estimate numbered in the same transaction.
func (s *Service) Create(ctx context.Context, req Request) (Estimate, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Estimate{}, err
	}
	est, err := s.build(ctx, req)
	if err != nil {
		return Estimate{}, err
	}
	est.CompanyID = id.CompanyID
	est.Status = StatusDraft
	est.CreatedBy = id.UserID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issued, err := numbering.Issue(ctx, tx, id.CompanyID, numbering.DocEstimate)
		if err != nil {
			return err
		}
		est.Number = issued.Number
		if err := tx.Insert(ctx, &est); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.created", est.ID, map[string]any{
			"number": est.Number, "total_amount": est.TotalAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return Estimate{}, err
	}
	s.metrics.DocumentCreated(string(numbering.DocEstimate))
	s.logger.Info("estimate created",
		slog.Int64("company_id", id.CompanyID),
		slog.Int64("estimate_id", est.ID),
		slog.String("number", est.Number))
	return est, nil
}

// Update replaces the header and lines. Converted estimates are frozen.
func (s *Service) Update(ctx context.Context, estimateID int64, req Request) (Estimate, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Estimate{}, err
	}
	next, err := s.build(ctx, req)
	if err != nil {
		return Estimate{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEstimate(ctx, id.CompanyID, estimateID)
		if err != nil {
			return err
		}
		if current.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		current.CustomerID = next.CustomerID
		current.EstimateDate = next.EstimateDate
		current.ValidUntil = next.ValidUntil
		current.Notes = next.Notes
		current.Pricing = next.Pricing
		current.Lines = next.Lines
		if err := tx.Update(ctx, &current); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.updated", estimateID, map[string]any{
			"total_amount": current.TotalAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return Estimate{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, estimateID)
}

func (s *Service) Get(ctx context.Context, estimateID int64) (Estimate, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Estimate{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, estimateID)
}

func (s *Service) List(ctx context.Context, filter documents.ListFilter) ([]Estimate, int, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" {
		if _, err := ParseStatus(filter.Status); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, id.CompanyID, filter)
}

// Delete removes an estimate and its lines unless it has been converted.
func (s *Service) Delete(ctx context.Context, estimateID int64) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		est, err := tx.LockEstimate(ctx, id.CompanyID, estimateID)
		if err != nil {
			return err
		}
		if est.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		if err := tx.Delete(ctx, id.CompanyID, estimateID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.deleted", estimateID, map[string]any{"number": est.Number}))
	})
}

// ChangeStatus moves an estimate between the user controlled statuses.
// Converted is reached only through Convert and is final. Declined and
// expired estimates are closed and keep their status.
func (s *Service) ChangeStatus(ctx context.Context, estimateID int64, req StatusRequest) (Estimate, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Estimate{}, err
	}
	target, err := ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return Estimate{}, err
	}
	if target == StatusConverted {
		return Estimate{}, fmt.Errorf("%w: use convert to create an invoice", ErrInvalidState)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		est, err := tx.LockEstimate(ctx, id.CompanyID, estimateID)
		if err != nil {
			return err
		}
		if est.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		if est.Status == target {
			return nil
		}
		if est.Status.Closed() {
			return fmt.Errorf("%w (%s)", ErrInvalidState, est.Status)
		}
		if err := tx.SetStatus(ctx, id.CompanyID, estimateID, target); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.status_changed", estimateID, map[string]any{
			"from": est.Status, "to": target,
		}))
	})
	if err != nil {
		return Estimate{}, err
	}
	return s.repo.Get(ctx, id.CompanyID, estimateID)
}

// Convert turns an estimate into a draft sales invoice. The invoice number,
// the invoice with a verbatim copy of the lines and the estimate's converted
// status are written in one transaction.
func (s *Service) Convert(ctx context.Context, estimateID int64) (Conversion, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Conversion{}, err
	}

	var result Conversion
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		est, err := tx.LockEstimate(ctx, id.CompanyID, estimateID)
		if err != nil {
			return err
		}
		if est.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		if !est.Status.Convertible() {
			return fmt.Errorf("%w (%s)", ErrInvalidState, est.Status)
		}
		lines, err := tx.Lines(ctx, est.ID)
		if err != nil {
			return err
		}
		inputs := make([]ledger.LineInput, len(lines))
		for i, l := range lines {
			inputs[i] = l.Input()
		}
		priced, err := documents.Price(ctx, s.rates, est.Pricing.Request(), inputs)
		if err != nil {
			return err
		}
		issued, err := numbering.Issue(ctx, tx, id.CompanyID, numbering.DocSalesInvoice)
		if err != nil {
			return err
		}
		estimateRef := est.ID
		inv := invoices.Invoice{
			CompanyID:   id.CompanyID,
			Kind:        invoices.KindSales,
			Number:      issued.Number,
			ContactID:   est.CustomerID,
			InvoiceDate: today(s.now()),
			Status:      invoices.StatusDraft,
			EstimateID:  &estimateRef,
			Pricing:     priced.Pricing,
			Notes:       est.Notes,
			CreatedBy:   id.UserID,
			Lines:       lines,
		}
		if err := tx.InsertInvoice(ctx, &inv); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id.CompanyID, est.ID, StatusConverted); err != nil {
			return err
		}
		result = Conversion{EstimateID: est.ID, InvoiceID: inv.ID, InvoiceNumber: inv.Number}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.converted", est.ID, map[string]any{
			"invoice_id": inv.ID, "invoice_number": inv.Number,
		}))
	})
	s.metrics.Conversion(observability.Result(err))
	if err != nil {
		return Conversion{}, err
	}
	s.metrics.DocumentCreated(string(numbering.DocSalesInvoice))
	s.logger.Info("estimate converted",
		slog.Int64("company_id", id.CompanyID),
		slog.Int64("estimate_id", result.EstimateID),
		slog.Int64("invoice_id", result.InvoiceID),
		slog.String("invoice_number", result.InvoiceNumber))
	return result, nil
}

// ImportLines replaces the lines of an estimate with the rows of a CSV file.
// Rows without an item number and description are skipped.
func (s *Service) ImportLines(ctx context.Context, estimateID int64, r io.Reader) (ImportResult, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	recs, err := csvio.ReadRecords(r)
	if err != nil {
		return ImportResult{}, err
	}
	parsed, skipped := csvio.LinesFromRecords(recs)
	if len(parsed) == 0 {
		return ImportResult{}, shared.NewValidationError("file", "contains no line items")
	}
	if len(parsed) > documents.MaxLines {
		return ImportResult{}, shared.NewValidationError("file", fmt.Sprintf("at most %d line items are allowed", documents.MaxLines))
	}
	lines := make([]documents.LineRequest, len(parsed))
	for i, in := range parsed {
		lines[i] = documents.LineRequestFrom(in)
	}
	if err := documents.ValidateLines(lines); err != nil {
		return ImportResult{}, err
	}
	inputs := documents.Inputs(lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		est, err := tx.LockEstimate(ctx, id.CompanyID, estimateID)
		if err != nil {
			return err
		}
		if est.Status == StatusConverted {
			return ErrAlreadyConverted
		}
		priced, err := documents.Price(ctx, s.rates, est.Pricing.Request(), inputs)
		if err != nil {
			return err
		}
		est.Pricing = priced.Pricing
		est.Lines = priced.Lines
		if err := tx.Update(ctx, &est); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(id, "estimate.lines_imported", estimateID, map[string]any{
			"imported": len(inputs), "skipped": skipped,
		}))
	})
	if err != nil {
		return ImportResult{}, err
	}
	est, err := s.repo.Get(ctx, id.CompanyID, estimateID)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Imported: len(inputs), Skipped: skipped, Estimate: est}, nil
}

var exportHeader = []string{"number", "customer_id", "estimate_date", "valid_until", "status", "subtotal", "total_tax", "total_amount"}

// Export writes every estimate header as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	all, err := s.repo.All(ctx, id.CompanyID)
	if err != nil {
		return err
	}
	rows := make([][]string, len(all))
	for i, e := range all {
		validUntil := ""
		if e.ValidUntil != nil {
			validUntil = e.ValidUntil.Format(documents.DateLayout)
		}
		rows[i] = []string{
			e.Number,
			strconv.FormatInt(e.CustomerID, 10),
			e.EstimateDate.Format(documents.DateLayout),
			validUntil,
			string(e.Status),
			csvio.Money(e.Subtotal),
			csvio.Money(e.TotalTax),
			csvio.Money(e.TotalAmount),
		}
	}
	return csvio.WriteRecords(w, exportHeader, rows)
}

// ExportLines writes the lines of one estimate as CSV in the import layout.
func (s *Service) ExportLines(ctx context.Context, estimateID int64, w io.Writer) error {
	est, err := s.Get(ctx, estimateID)
	if err != nil {
		return err
	}
	rows := make([][]string, len(est.Lines))
	for i, l := range est.Lines {
		rows[i] = csvio.LineRow(l)
	}
	return csvio.WriteRecords(w, csvio.LineHeader, rows)
}

// ExpireOverdue marks draft and sent estimates past their validity as
// expired for every company. It runs from the scheduler, not a request.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, today(s.now()))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("estimates expired", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) build(ctx context.Context, req Request) (Estimate, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Estimate{}, err
	}
	estimateDate, err := documents.ParseDate("estimate_date", req.EstimateDate)
	if err != nil {
		return Estimate{}, err
	}
	validUntil, err := documents.ParseOptionalDate("valid_until", req.ValidUntil)
	if err != nil {
		return Estimate{}, err
	}
	if validUntil != nil && validUntil.Before(estimateDate) {
		return Estimate{}, shared.NewValidationError("valid_until", "must not be before the estimate date")
	}
	if err := documents.ValidateLines(req.Lines); err != nil {
		return Estimate{}, err
	}
	if _, err := s.customers.Resolve(ctx, req.CustomerID, contacts.KindCustomer); err != nil {
		return Estimate{}, err
	}
	priced, err := documents.Price(ctx, s.rates, req.PricingRequest, documents.Inputs(req.Lines))
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		CustomerID:   req.CustomerID,
		EstimateDate: estimateDate,
		ValidUntil:   validUntil,
		Notes:        strings.TrimSpace(req.Notes),
		Pricing:      priced.Pricing,
		Lines:        priced.Lines,
	}, nil
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func auditEntry(id shared.Identity, action string, estimateID int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		CompanyID: id.CompanyID,
		ActorID:   id.UserID,
		Action:    action,
		Entity:    "estimate",
		EntityID:  strconv.FormatInt(estimateID, 10),
		Meta:      meta,
		At:        time.Now().UTC(),
	}
}
