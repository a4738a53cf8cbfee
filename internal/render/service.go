// Package render produces HTML and PDF versions of estimates and invoices.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/estimates"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
	"github.com/arkhan2/invoicing-system-sub001/web"
)

type Estimates interface {
	Get(ctx context.Context, estimateID int64) (estimates.Estimate, error)
}

type Invoices interface {
	Get(ctx context.Context, kind invoices.Kind, invoiceID int64) (invoices.Invoice, error)
}

type Contacts interface {
	Get(ctx context.Context, kind contacts.Kind, contactID int64) (contacts.Contact, error)
}

// Balances supplies the paid and outstanding amounts printed on invoices.
type Balances interface {
	Balance(ctx context.Context, invoiceID int64) (ledger.Balance, error)
}

// Converter turns a full HTML document into a PDF.
type Converter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Dependencies groups the collaborators of Service. Balances, Cache and
// Metrics may be nil.
type Dependencies struct {
	Estimates Estimates
	Invoices  Invoices
	Contacts  Contacts
	Balances  Balances
	Converter Converter
	Cache     *PDFCache
	Metrics   *observability.Domain
	Locale    string
}

// Document is the template view of an estimate or invoice.
type Document struct {
	Locale       string
	Title        string
	Number       string
	Status       string
	ContactLabel string
	Contact      contacts.Contact
	Date         time.Time
	DueLabel     string
	DueDate      *time.Time
	Lines        []ledger.Line
	Pricing      documents.Pricing
	Notes        string
	Balance      *ledger.Balance
}

// HasDiscount reports whether a document discount reduced the subtotal.
func (d Document) HasDiscount() bool { return d.DiscountValue().IsPositive() }

// PercentDiscount reports whether the discount was entered as a percentage.
func (d Document) PercentDiscount() bool {
	return d.Pricing.DiscountType == ledger.DiscountPercentage
}

// DiscountValue is the money taken off the subtotal.
func (d Document) DiscountValue() decimal.Decimal {
	return d.Pricing.Subtotal.Sub(d.Pricing.TotalAmount.Sub(d.Pricing.TotalTax))
}

// Service renders documents and caches their PDFs.
type Service struct {
	deps   Dependencies
	format Formatter
	tmpl   *template.Template
	group  singleflight.Group
	logger *slog.Logger
}

// NewService parses the embedded document template.
func NewService(deps Dependencies, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	format := NewFormatter(deps.Locale)
	tmpl, err := template.New("document.html").Funcs(format.funcs()).
		ParseFS(web.Templates, "templates/documents/document.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Service{deps: deps, format: format, tmpl: tmpl, logger: logger}, nil
}

// EstimateDocument loads an estimate into its template view.
func (s *Service) EstimateDocument(ctx context.Context, estimateID int64) (Document, time.Time, error) {
	est, err := s.deps.Estimates.Get(ctx, estimateID)
	if err != nil {
		return Document{}, time.Time{}, err
	}
	customer, err := s.deps.Contacts.Get(ctx, contacts.KindCustomer, est.CustomerID)
	if err != nil {
		return Document{}, time.Time{}, err
	}
	return Document{
		Locale:       s.format.Locale(),
		Title:        "Estimate",
		Number:       est.Number,
		Status:       string(est.Status),
		ContactLabel: "Customer",
		Contact:      customer,
		Date:         est.EstimateDate,
		DueLabel:     "Valid until",
		DueDate:      est.ValidUntil,
		Lines:        est.Lines,
		Pricing:      est.Pricing,
		Notes:        est.Notes,
	}, est.UpdatedAt, nil
}

// InvoiceDocument loads an invoice, and its balance when available.
func (s *Service) InvoiceDocument(ctx context.Context, kind invoices.Kind, invoiceID int64) (Document, time.Time, error) {
	inv, err := s.deps.Invoices.Get(ctx, kind, invoiceID)
	if err != nil {
		return Document{}, time.Time{}, err
	}
	contact, err := s.deps.Contacts.Get(ctx, kind.ContactKind(), inv.ContactID)
	if err != nil {
		return Document{}, time.Time{}, err
	}
	doc := Document{
		Locale:       s.format.Locale(),
		Title:        "Invoice",
		Number:       inv.Number,
		Status:       string(inv.Status),
		ContactLabel: "Bill to",
		Contact:      contact,
		Date:         inv.InvoiceDate,
		DueLabel:     "Due date",
		DueDate:      inv.DueDate,
		Lines:        inv.Lines,
		Pricing:      inv.Pricing,
		Notes:        inv.Notes,
	}
	if kind == invoices.KindPurchase {
		doc.Title = "Purchase invoice"
		doc.ContactLabel = "Vendor"
	}
	if s.deps.Balances != nil {
		bal, err := s.deps.Balances.Balance(ctx, inv.ID)
		if err != nil {
			return Document{}, time.Time{}, err
		}
		doc.Balance = &bal
	}
	return doc, inv.UpdatedAt, nil
}

// HTML executes the document template.
func (s *Service) HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// EstimatePDF returns the PDF for an estimate.
func (s *Service) EstimatePDF(ctx context.Context, estimateID int64) ([]byte, string, error) {
	doc, updatedAt, err := s.EstimateDocument(ctx, estimateID)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.pdf(ctx, "estimate", estimateID, updatedAt, doc)
	return pdf, doc.Number + ".pdf", err
}

// InvoicePDF returns the PDF for an invoice.
func (s *Service) InvoicePDF(ctx context.Context, kind invoices.Kind, invoiceID int64) ([]byte, string, error) {
	doc, updatedAt, err := s.InvoiceDocument(ctx, kind, invoiceID)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.pdf(ctx, string(kind.DocType()), invoiceID, updatedAt, doc)
	return pdf, doc.Number + ".pdf", err
}

// pdf serves from cache, otherwise renders once per key no matter how many
// requests arrive concurrently. Invoice balances change without touching
// updated_at, so they are part of the key.
func (s *Service) pdf(ctx context.Context, docType string, id int64, updatedAt time.Time, doc Document) ([]byte, error) {
	identity, err := shared.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	key := Key(identity.CompanyID, docType, id, updatedAt, doc.Contact.UpdatedAt)
	if doc.Balance != nil {
		key = fmt.Sprintf("%s:%s:%s", key, doc.Balance.PaidAmount.StringFixed(2), doc.Balance.OutstandingBalance.StringFixed(2))
	}

	if body, ok, err := s.deps.Cache.Get(ctx, key); err != nil {
		s.logger.Warn("pdf cache read", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		s.deps.Metrics.PDFRender("cache_hit")
		return body, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		renderCtx := context.WithoutCancel(ctx)
		html, err := s.HTML(doc)
		if err != nil {
			return nil, err
		}
		body, err := s.deps.Converter.RenderHTML(renderCtx, string(html))
		if err != nil {
			return nil, err
		}
		if err := s.deps.Cache.Set(renderCtx, key, body); err != nil {
			s.logger.Warn("pdf cache write", slog.String("key", key), slog.Any("error", err))
		}
		return body, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.deps.Metrics.PDFRender("error")
			return nil, fmt.Errorf("render: %s %d: %w", docType, id, res.Err)
		}
		s.deps.Metrics.PDFRender("rendered")
		return res.Val.([]byte), nil
	}
}
