// Package estimates manages quotes sent to customers and their one-way
// conversion into sales invoices.
package estimates

import (
	"fmt"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Status is the lifecycle state of an estimate.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// ParseStatus validates a status name, including converted.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusSent, StatusAccepted, StatusDeclined, StatusExpired, StatusConverted:
		return Status(s), nil
	}
	return "", shared.NewValidationError("status", "must be draft, sent, accepted, declined or expired")
}

// Convertible reports whether an estimate in status s may become an invoice.
func (s Status) Convertible() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted:
		return true
	}
	return false
}

// Closed reports whether s is a final outcome other than conversion.
func (s Status) Closed() bool {
	return s == StatusDeclined || s == StatusExpired
}

var (
	ErrNotFound         = fmt.Errorf("estimate %w", shared.ErrNotFound)
	ErrAlreadyConverted = fmt.Errorf("%w: estimate has already been converted", shared.ErrConflict)
	ErrInvalidState     = fmt.Errorf("%w: estimate cannot be converted in its current status", shared.ErrConflict)
)

// Estimate is a numbered quote with its lines.
type Estimate struct {
	ID           int64      `json:"id"`
	CompanyID    int64      `json:"-"`
	Number       string     `json:"number"`
	CustomerID   int64      `json:"customer_id"`
	EstimateDate time.Time  `json:"estimate_date"`
	ValidUntil   *time.Time `json:"valid_until"`
	Status       Status     `json:"status"`
	documents.Pricing
	Notes     string        `json:"notes"`
	InvoiceID *int64        `json:"invoice_id,omitempty"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Lines     []ledger.Line `json:"lines,omitempty"`
}

// Request is the create/update payload.
type Request struct {
	CustomerID   int64  `json:"customer_id" validate:"required,gt=0"`
	EstimateDate string `json:"estimate_date" validate:"required"`
	ValidUntil   string `json:"valid_until"`
	Notes        string `json:"notes" validate:"max=2000"`
	documents.PricingRequest
	Lines []documents.LineRequest `json:"lines"`
}

// StatusRequest changes an estimate's status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Conversion identifies the invoice created from an estimate.
type Conversion struct {
	EstimateID    int64  `json:"estimate_id"`
	InvoiceID     int64  `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
}

// ImportResult reports a CSV line import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Estimate Estimate `json:"estimate"`
}
