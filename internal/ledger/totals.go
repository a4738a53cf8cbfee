package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a document discount is interpreted.
type DiscountType string

const (
	DiscountAmount     DiscountType = "amount"
	DiscountPercentage DiscountType = "percentage"
)

// ParseDiscountType returns DiscountAmount for an empty value.
func ParseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(s) {
	case "", DiscountAmount:
		return DiscountAmount, nil
	case DiscountPercentage:
		return DiscountPercentage, nil
	default:
		return "", fmt.Errorf("unknown discount type %q", s)
	}
}

// Discount is a document level discount.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Totals are the document level figures derived from its lines.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

var hundred = decimal.NewFromInt(100)

// Aggregate sums computed lines and applies the document discount and tax
// rate. A discount larger than the subtotal leaves zero, never a negative
// amount. A nil rate means no tax.
func Aggregate(lines []Line, discount Discount, taxRatePercent *decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total)
	}

	discountValue := discount.Value
	if discount.Type == DiscountPercentage {
		discountValue = subtotal.Mul(discount.Value).Div(hundred)
	}
	discountValue = discountValue.Round(2)

	afterDiscount := subtotal.Sub(discountValue)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}

	tax := decimal.Zero
	if taxRatePercent != nil {
		tax = afterDiscount.Mul(*taxRatePercent).Div(hundred).Round(2)
	}

	return Totals{
		Subtotal:           subtotal,
		DiscountValue:      discountValue,
		TotalAfterDiscount: afterDiscount,
		TaxAmount:          tax,
		GrandTotal:         afterDiscount.Add(tax),
	}
}
