package csvio

import (
	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
)

// LineHeader is the column order used for line item exports and templates.
var LineHeader = []string{
	"item_number", "description", "uom", "quantity", "unit_price",
	"value_sales_excluding_st", "sales_tax_applicable", "sales_tax_withheld_at_source",
	"extra_tax", "further_tax", "discount", "total",
}

// LineFromRecord maps an imported row to a line input. It returns nil when
// the row has neither an item number nor a description, which callers skip.
// Numeric columns that are blank or unparsable become zero.
func LineFromRecord(rec Record) *ledger.LineInput {
	in := ledger.LineInput{
		ItemNumber:  rec.Get("item_number", "item_no", "item_code", "item"),
		Description: rec.Get("description", "item_description", "name"),
		UOM:         rec.Get("uom", "unit"),
	}
	if in.ItemNumber == "" && in.Description == "" {
		return nil
	}
	in.Quantity = ledger.ParseAmount(rec.Get("quantity", "qty"))
	in.UnitPrice = ledger.ParseAmount(rec.Get("unit_price", "price", "rate"))
	in.SalesTaxApplicable = ledger.ParseAmount(rec.Get("sales_tax_applicable", "sales_tax"))
	in.SalesTaxWithheldAtSource = ledger.ParseAmount(rec.Get("sales_tax_withheld_at_source", "sales_tax_withheld"))
	in.ExtraTax = ledger.ParseAmount(rec.Get("extra_tax"))
	in.FurtherTax = ledger.ParseAmount(rec.Get("further_tax"))
	in.Discount = ledger.ParseAmount(rec.Get("discount"))
	return &in
}

// LinesFromRecords maps every row, dropping the ones LineFromRecord rejects.
// skipped counts the dropped rows.
func LinesFromRecords(recs []Record) (lines []ledger.LineInput, skipped int) {
	for _, rec := range recs {
		in := LineFromRecord(rec)
		if in == nil {
			skipped++
			continue
		}
		lines = append(lines, *in)
	}
	return lines, skipped
}

// LineRow renders a computed line in LineHeader order.
func LineRow(l ledger.Line) []string {
	return []string{
		l.ItemNumber, l.Description, l.UOM,
		l.Quantity.String(), l.UnitPrice.String(),
		l.ValueSalesExcludingST.String(), l.SalesTaxApplicable.String(), l.SalesTaxWithheldAtSource.String(),
		l.ExtraTax.String(), l.FurtherTax.String(), l.Discount.String(),
		l.Total.StringFixed(2),
	}
}

// Money renders an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
