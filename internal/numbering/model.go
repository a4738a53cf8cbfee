// Package numbering issues human readable document numbers from per-company
// counters. Issue runs inside the caller's transaction so a number is only
// consumed when the document that carries it is committed.
package numbering

import (
	"errors"
	"fmt"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// DocType names a numbered document family.
type DocType string

const (
	DocEstimate        DocType = "estimate"
	DocSalesInvoice    DocType = "sales_invoice"
	DocPurchaseInvoice DocType = "purchase_invoice"
)

// DocTypes lists every numbered document family in display order.
var DocTypes = []DocType{DocEstimate, DocSalesInvoice, DocPurchaseInvoice}

// DefaultPrefix returns the prefix used when a company has no sequence row yet.
func DefaultPrefix(t DocType) string {
	switch t {
	case DocEstimate:
		return "EST"
	case DocSalesInvoice:
		return "INV"
	case DocPurchaseInvoice:
		return "PINV"
	}
	return ""
}

// ParseDocType validates a doc type coming from a URL or payload.
func ParseDocType(s string) (DocType, error) {
	t := DocType(s)
	if DefaultPrefix(t) == "" {
		return "", shared.NewValidationError("doc_type", "must be one of estimate sales_invoice purchase_invoice")
	}
	return t, nil
}

// ErrSequenceRewind is returned when next_number would move backwards.
var ErrSequenceRewind = fmt.Errorf("%w: next number cannot be lower than the current value", shared.ErrConflict)

// ErrUnknownDocType is returned for doc types without a default prefix.
var ErrUnknownDocType = errors.New("numbering: unknown document type")

// Sequence is the counter row for one company and document type.
type Sequence struct {
	CompanyID  int64   `json:"-"`
	DocType    DocType `json:"doc_type"`
	Prefix     string  `json:"prefix"`
	NextNumber int64   `json:"next_number"`
}

// Preview is the number the next document will receive.
func (s Sequence) Preview() string {
	return Format(s.Prefix, s.NextNumber)
}

// Issued is the outcome of a successful Issue call.
type Issued struct {
	Number   string
	Prefix   string
	Sequence int64
}

// Format renders a document number as PREFIX-NNN, zero padded to three digits.
// Longer numbers are not truncated.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// UpdateSettingsRequest changes the prefix and next number of a sequence.
type UpdateSettingsRequest struct {
	Prefix     string `json:"prefix" validate:"required,max=16,alphanum"`
	NextNumber int64  `json:"next_number" validate:"required,gte=1"`
}
