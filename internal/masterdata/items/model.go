// Package items manages the product and service catalog used to prefill
// document lines.
package items

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

var (
	ErrNotFound  = fmt.Errorf("item %w", shared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("%w: item number already exists", shared.ErrConflict)
)

// Item is a catalog entry.
type Item struct {
	ID                 int64           `json:"id"`
	CompanyID          int64           `json:"-"`
	ItemNumber         string          `json:"item_number"`
	Description        string          `json:"description"`
	UOM                string          `json:"uom"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	SalesTaxApplicable decimal.Decimal `json:"sales_tax_applicable"`
	ExtraTax           decimal.Decimal `json:"extra_tax"`
	FurtherTax         decimal.Decimal `json:"further_tax"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LineInput prefills a document line for quantity units of the item.
func (it Item) LineInput(quantity decimal.Decimal) ledger.LineInput {
	return ledger.LineInput{
		ItemNumber:         it.ItemNumber,
		Description:        it.Description,
		UOM:                it.UOM,
		Quantity:           quantity,
		UnitPrice:          it.UnitPrice,
		SalesTaxApplicable: it.SalesTaxApplicable.Mul(quantity),
		ExtraTax:           it.ExtraTax.Mul(quantity),
		FurtherTax:         it.FurtherTax.Mul(quantity),
	}
}

// Request is the create/update payload.
type Request struct {
	ItemNumber         string        `json:"item_number" validate:"required,max=64"`
	Description        string        `json:"description" validate:"required,max=500"`
	UOM                string        `json:"uom" validate:"max=32"`
	UnitPrice          ledger.Amount `json:"unit_price"`
	SalesTaxApplicable ledger.Amount `json:"sales_tax_applicable"`
	ExtraTax           ledger.Amount `json:"extra_tax"`
	FurtherTax         ledger.Amount `json:"further_tax"`
}

// ImportResult reports the outcome of a CSV import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
