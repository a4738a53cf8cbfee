package items

import (
	"github.com/arkhan2/invoicing-system-sub001/internal/csvio"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
)

var csvHeader = []string{"item_number", "description", "uom", "unit_price", "sales_tax_applicable", "extra_tax", "further_tax"}

// RequestFromRecord maps an imported row. Rows without an item number are
// skipped; a missing description falls back to the item number.
func RequestFromRecord(rec csvio.Record) *Request {
	number := rec.Get("item_number", "item_no", "item_code", "sku")
	if number == "" {
		return nil
	}
	desc := rec.Get("description", "name")
	if desc == "" {
		desc = number
	}
	return &Request{
		ItemNumber:         number,
		Description:        desc,
		UOM:                rec.Get("uom", "unit"),
		UnitPrice:          ledger.NewAmount(ledger.ParseAmount(rec.Get("unit_price", "price", "rate"))),
		SalesTaxApplicable: ledger.NewAmount(ledger.ParseAmount(rec.Get("sales_tax_applicable", "sales_tax"))),
		ExtraTax:           ledger.NewAmount(ledger.ParseAmount(rec.Get("extra_tax"))),
		FurtherTax:         ledger.NewAmount(ledger.ParseAmount(rec.Get("further_tax"))),
	}
}

func csvRow(it Item) []string {
	return []string{
		it.ItemNumber, it.Description, it.UOM,
		it.UnitPrice.String(), it.SalesTaxApplicable.String(),
		it.ExtraTax.String(), it.FurtherTax.String(),
	}
}
