// Package ledger holds the pure money arithmetic shared by estimates and
// invoices: per-row line totals and document level totals.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineInput is the raw, user supplied part of a line item.
type LineInput struct {
	ItemNumber               string
	Description              string
	UOM                      string
	Quantity                 decimal.Decimal
	UnitPrice                decimal.Decimal
	SalesTaxApplicable       decimal.Decimal
	SalesTaxWithheldAtSource decimal.Decimal
	ExtraTax                 decimal.Decimal
	FurtherTax               decimal.Decimal
	Discount                 decimal.Decimal
}

// Line is a fully computed line item.
type Line struct {
	ItemNumber               string          `json:"item_number"`
	Description              string          `json:"description"`
	UOM                      string          `json:"uom"`
	Quantity                 decimal.Decimal `json:"quantity"`
	UnitPrice                decimal.Decimal `json:"unit_price"`
	ValueSalesExcludingST    decimal.Decimal `json:"value_sales_excluding_st"`
	SalesTaxApplicable       decimal.Decimal `json:"sales_tax_applicable"`
	SalesTaxWithheldAtSource decimal.Decimal `json:"sales_tax_withheld_at_source"`
	ExtraTax                 decimal.Decimal `json:"extra_tax"`
	FurtherTax               decimal.Decimal `json:"further_tax"`
	Discount                 decimal.Decimal `json:"discount"`
	Total                    decimal.Decimal `json:"total"`
}

// Input strips the derived fields from l.
func (l Line) Input() LineInput {
	return LineInput{
		ItemNumber:               l.ItemNumber,
		Description:              l.Description,
		UOM:                      l.UOM,
		Quantity:                 l.Quantity,
		UnitPrice:                l.UnitPrice,
		SalesTaxApplicable:       l.SalesTaxApplicable,
		SalesTaxWithheldAtSource: l.SalesTaxWithheldAtSource,
		ExtraTax:                 l.ExtraTax,
		FurtherTax:               l.FurtherTax,
		Discount:                 l.Discount,
	}
}

// ComputeLine derives value excluding sales tax and the row total:
//
//	total = quantity*unit_price + sales_tax_applicable - sales_tax_withheld_at_source
//	        + extra_tax + further_tax - discount
//
// rounded half away from zero to 2 decimals.
func ComputeLine(in LineInput) Line {
	value := in.Quantity.Mul(in.UnitPrice)
	total := value.
		Add(in.SalesTaxApplicable).
		Sub(in.SalesTaxWithheldAtSource).
		Add(in.ExtraTax).
		Add(in.FurtherTax).
		Sub(in.Discount).
		Round(2)

	return Line{
		ItemNumber:               in.ItemNumber,
		Description:              in.Description,
		UOM:                      in.UOM,
		Quantity:                 in.Quantity,
		UnitPrice:                in.UnitPrice,
		ValueSalesExcludingST:    value,
		SalesTaxApplicable:       in.SalesTaxApplicable,
		SalesTaxWithheldAtSource: in.SalesTaxWithheldAtSource,
		ExtraTax:                 in.ExtraTax,
		FurtherTax:               in.FurtherTax,
		Discount:                 in.Discount,
		Total:                    total,
	}
}

// ComputeLines applies ComputeLine to every input, preserving order.
func ComputeLines(inputs []LineInput) []Line {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = ComputeLine(in)
	}
	return lines
}

// LinePatch is a partial row update. Nil fields are left untouched.
type LinePatch struct {
	ItemNumber               *string
	Description              *string
	UOM                      *string
	Quantity                 *decimal.Decimal
	UnitPrice                *decimal.Decimal
	SalesTaxApplicable       *decimal.Decimal
	SalesTaxWithheldAtSource *decimal.Decimal
	ExtraTax                 *decimal.Decimal
	FurtherTax               *decimal.Decimal
	Discount                 *decimal.Decimal
}

// ApplyPatch returns l with the patch applied and the derived fields
// recomputed. l itself is not modified.
func ApplyPatch(l Line, p LinePatch) Line {
	in := l.Input()
	setString(&in.ItemNumber, p.ItemNumber)
	setString(&in.Description, p.Description)
	setString(&in.UOM, p.UOM)
	setDecimal(&in.Quantity, p.Quantity)
	setDecimal(&in.UnitPrice, p.UnitPrice)
	setDecimal(&in.SalesTaxApplicable, p.SalesTaxApplicable)
	setDecimal(&in.SalesTaxWithheldAtSource, p.SalesTaxWithheldAtSource)
	setDecimal(&in.ExtraTax, p.ExtraTax)
	setDecimal(&in.FurtherTax, p.FurtherTax)
	setDecimal(&in.Discount, p.Discount)
	return ComputeLine(in)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

// ParseAmount coerces user input to a decimal. Blank or non-numeric input
// yields zero. Thousands separators and surrounding spaces are ignored.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
