// Package invoices manages sales and purchase invoices.
package invoices

import (
	"fmt"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Kind separates invoices issued to customers from bills received from vendors.
type Kind string

const (
	KindSales    Kind = "sales"
	KindPurchase Kind = "purchase"
)

// ParseKind validates the kind path segment.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSales, KindPurchase:
		return Kind(s), nil
	}
	return "", shared.NewValidationError("kind", "must be sales or purchase")
}

// DocType is the numbering sequence of the kind.
func (k Kind) DocType() numbering.DocType {
	if k == KindPurchase {
		return numbering.DocPurchaseInvoice
	}
	return numbering.DocSalesInvoice
}

// ContactKind is the kind of contact an invoice of this kind is issued to.
func (k Kind) ContactKind() contacts.Kind {
	if k == KindPurchase {
		return contacts.KindVendor
	}
	return contacts.KindCustomer
}

// Status of an invoice. Void is terminal.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusVoid  Status = "void"
)

// ParseStatus validates a requested status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusSent, StatusVoid:
		return Status(s), nil
	}
	return "", shared.NewValidationError("status", "must be draft, sent or void")
}

var (
	ErrNotFound       = fmt.Errorf("invoice %w", shared.ErrNotFound)
	ErrVoid           = fmt.Errorf("%w: invoice is void", shared.ErrConflict)
	ErrHasAllocations = fmt.Errorf("%w: invoice has payment allocations", shared.ErrConflict)
	ErrBelowAllocated = fmt.Errorf("%w: total would fall below the amount already paid", shared.ErrConflict)
	ErrContactLocked  = fmt.Errorf("%w: contact cannot change while payments are allocated", shared.ErrConflict)
)

// Invoice is a numbered sales or purchase invoice with its lines.
type Invoice struct {
	ID          int64      `json:"id"`
	CompanyID   int64      `json:"-"`
	Kind        Kind       `json:"kind"`
	Number      string     `json:"number"`
	ContactID   int64      `json:"contact_id"`
	InvoiceDate time.Time  `json:"invoice_date"`
	DueDate     *time.Time `json:"due_date"`
	Status      Status     `json:"status"`
	EstimateID  *int64     `json:"estimate_id"`
	documents.Pricing
	Notes     string        `json:"notes"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Lines     []ledger.Line `json:"lines,omitempty"`
}

// Request is the create/update payload. Lines replace the stored lines.
type Request struct {
	ContactID   int64  `json:"contact_id" validate:"required,gt=0"`
	InvoiceDate string `json:"invoice_date" validate:"required"`
	DueDate     string `json:"due_date"`
	Notes       string `json:"notes" validate:"max=2000"`
	documents.PricingRequest
	Lines []documents.LineRequest `json:"lines"`
}

// StatusRequest changes an invoice's status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}
