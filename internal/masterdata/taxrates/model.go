// Package taxrates manages the per-company sales tax rates documents refer to.
package taxrates

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

var (
	ErrNotFound  = fmt.Errorf("tax rate %w", shared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("%w: tax rate name already exists", shared.ErrConflict)
	ErrInUse     = fmt.Errorf("%w: tax rate is referenced by documents", shared.ErrConflict)
)

// TaxRate is a named sales tax percentage.
type TaxRate struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"-"`
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Request is the create/update payload.
type Request struct {
	Name        string        `json:"name" validate:"required,max=100"`
	RatePercent ledger.Amount `json:"rate_percent"`
}
