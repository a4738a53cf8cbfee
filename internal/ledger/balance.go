package ledger

import "github.com/shopspring/decimal"

// Balance is the paid state of an invoice derived from its allocations.
type Balance struct {
	Total              decimal.Decimal `json:"total"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

// Settle sums allocated amounts against an invoice total. The outstanding
// balance never goes below zero even if allocations exceed the total after
// the invoice was edited.
func Settle(total decimal.Decimal, allocated ...decimal.Decimal) Balance {
	paid := decimal.Zero
	for _, a := range allocated {
		paid = paid.Add(a)
	}
	outstanding := total.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return Balance{Total: total, PaidAmount: paid, OutstandingBalance: outstanding}
}

// Unallocated returns what is left of a payment after its allocations,
// floored at zero.
func Unallocated(gross decimal.Decimal, allocated ...decimal.Decimal) decimal.Decimal {
	left := gross
	for _, a := range allocated {
		left = left.Sub(a)
	}
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
