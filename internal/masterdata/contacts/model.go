// Package contacts manages the customers and vendors documents are issued to.
package contacts

import (
	"fmt"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Kind separates customers from vendors.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindVendor   Kind = "vendor"
)

// ParseKind accepts both singular and plural URL forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "customer", "customers":
		return KindCustomer, nil
	case "vendor", "vendors":
		return KindVendor, nil
	}
	return "", shared.NewValidationError("kind", "must be customers or vendors")
}

var (
	ErrNotFound = fmt.Errorf("contact %w", shared.ErrNotFound)
	ErrInUse    = fmt.Errorf("%w: contact is referenced by documents", shared.ErrConflict)
)

// Contact is a customer or vendor.
type Contact struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"-"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	TaxNumber string    `json:"tax_number"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request is the create/update payload.
type Request struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"omitempty,email,max=200"`
	Phone     string `json:"phone" validate:"max=50"`
	TaxNumber string `json:"tax_number" validate:"max=50"`
	Address   string `json:"address" validate:"max=500"`
}

// ImportResult reports the outcome of a CSV import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
