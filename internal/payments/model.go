// Package payments records money received from customers and paid to
// vendors, and allocates it against invoices.
package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/contacts"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Direction tells whether money came in or went out.
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionMade     Direction = "made"
)

// ParseDirection validates a direction value.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionReceived, DirectionMade:
		return Direction(s), nil
	}
	return "", shared.NewValidationError("direction", "must be received or made")
}

// InvoiceKind is the kind of invoice a payment in this direction settles.
func (d Direction) InvoiceKind() invoices.Kind {
	if d == DirectionMade {
		return invoices.KindPurchase
	}
	return invoices.KindSales
}

// ContactKind is the kind of contact on the other side of the payment.
func (d Direction) ContactKind() contacts.Kind {
	return d.InvoiceKind().ContactKind()
}

var (
	ErrNotFound           = fmt.Errorf("payment %w", shared.ErrNotFound)
	ErrAllocationNotFound = fmt.Errorf("allocation %w", shared.ErrNotFound)
	ErrInvoiceNotFound    = fmt.Errorf("invoice %w", shared.ErrNotFound)
	ErrOverAllocation     = fmt.Errorf("%w: allocation exceeds the available balance", shared.ErrConflict)
	ErrInvalidState       = fmt.Errorf("%w: void invoices cannot receive allocations", shared.ErrConflict)
)

// Payment is money moved between the company and a contact.
type Payment struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"-"`
	Direction   Direction       `json:"direction"`
	ContactID   int64           `json:"contact_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Notes       string          `json:"notes"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	Allocated   decimal.Decimal `json:"allocated_amount"`
	Unallocated decimal.Decimal `json:"unallocated_amount"`
	Allocations []Allocation    `json:"allocations,omitempty"`
}

// Allocation assigns part of a payment to an invoice.
type Allocation struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"-"`
	PaymentID       int64           `json:"payment_id"`
	InvoiceID       int64           `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InvoiceRef is the part of an invoice allocation rules look at.
type InvoiceRef struct {
	ID          int64
	Kind        invoices.Kind
	Number      string
	ContactID   int64
	Status      invoices.Status
	TotalAmount decimal.Decimal
}

// Summary is the paid state of an invoice, derived from its allocation rows
// on every read.
type Summary struct {
	InvoiceID     int64         `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	Kind          invoices.Kind `json:"kind"`
	ledger.Balance
	Allocations []Allocation `json:"allocations"`
}

// Request records a payment with optional initial allocations.
type Request struct {
	Direction   string              `json:"direction" validate:"required"`
	ContactID   int64               `json:"contact_id" validate:"required,gt=0"`
	PaymentDate string              `json:"payment_date" validate:"required"`
	Method      string              `json:"method" validate:"max=50"`
	Reference   string              `json:"reference" validate:"max=100"`
	GrossAmount ledger.Amount       `json:"gross_amount"`
	Notes       string              `json:"notes" validate:"max=2000"`
	Allocations []AllocationRequest `json:"allocations" validate:"max=200"`
}

// AllocationRequest assigns amount of a payment to an invoice.
type AllocationRequest struct {
	InvoiceID int64         `json:"invoice_id" validate:"required,gt=0"`
	Amount    ledger.Amount `json:"amount"`
}

// Filter narrows payment listings.
type Filter struct {
	shared.PageRequest
	Direction Direction
	ContactID int64
	From      *time.Time
	To        *time.Time
}
