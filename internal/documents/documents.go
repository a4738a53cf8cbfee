// Package documents holds what estimates and invoices have in common: the
// line and pricing payloads, server side total computation and line storage.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/taxrates"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// DateLayout is the wire format of document dates.
const DateLayout = "2006-01-02"

// MaxLines bounds the number of lines on a single document.
const MaxLines = 500

// MaxLineAmount bounds every submitted amount and the computed line value
// so that document totals fit their NUMERIC columns.
var MaxLineAmount = decimal.New(1, 12)

// TaxRates resolves a tax rate referenced by a document.
type TaxRates interface {
	Resolve(ctx context.Context, id int64) (taxrates.TaxRate, error)
}

// LineRequest is one submitted line. Derived fields are never accepted from
// the client; they are recomputed by ledger.ComputeLine.
type LineRequest struct {
	ItemNumber               string        `json:"item_number" validate:"max=64"`
	Description              string        `json:"description" validate:"max=1000"`
	UOM                      string        `json:"uom" validate:"max=32"`
	Quantity                 ledger.Amount `json:"quantity"`
	UnitPrice                ledger.Amount `json:"unit_price"`
	SalesTaxApplicable       ledger.Amount `json:"sales_tax_applicable"`
	SalesTaxWithheldAtSource ledger.Amount `json:"sales_tax_withheld_at_source"`
	ExtraTax                 ledger.Amount `json:"extra_tax"`
	FurtherTax               ledger.Amount `json:"further_tax"`
	Discount                 ledger.Amount `json:"discount"`
	// Client computed values are tolerated in the payload and ignored.
	ValueSalesExcludingST ledger.Amount `json:"value_sales_excluding_st"`
	Total                 ledger.Amount `json:"total"`
}

// Input converts the request into calculator input.
func (l LineRequest) Input() ledger.LineInput {
	return ledger.LineInput{
		ItemNumber:               strings.TrimSpace(l.ItemNumber),
		Description:              strings.TrimSpace(l.Description),
		UOM:                      strings.TrimSpace(l.UOM),
		Quantity:                 l.Quantity.Decimal,
		UnitPrice:                l.UnitPrice.Decimal,
		SalesTaxApplicable:       l.SalesTaxApplicable.Decimal,
		SalesTaxWithheldAtSource: l.SalesTaxWithheldAtSource.Decimal,
		ExtraTax:                 l.ExtraTax.Decimal,
		FurtherTax:               l.FurtherTax.Decimal,
		Discount:                 l.Discount.Decimal,
	}
}

// LineRequestFrom wraps calculator input, such as a parsed CSV row, as a
// request so it passes through ValidateLines.
func LineRequestFrom(in ledger.LineInput) LineRequest {
	return LineRequest{
		ItemNumber:               in.ItemNumber,
		Description:              in.Description,
		UOM:                      in.UOM,
		Quantity:                 ledger.NewAmount(in.Quantity),
		UnitPrice:                ledger.NewAmount(in.UnitPrice),
		SalesTaxApplicable:       ledger.NewAmount(in.SalesTaxApplicable),
		SalesTaxWithheldAtSource: ledger.NewAmount(in.SalesTaxWithheldAtSource),
		ExtraTax:                 ledger.NewAmount(in.ExtraTax),
		FurtherTax:               ledger.NewAmount(in.FurtherTax),
		Discount:                 ledger.NewAmount(in.Discount),
	}
}

// PricingRequest is the document level discount and tax selection.
type PricingRequest struct {
	DiscountAmount ledger.Amount `json:"discount_amount"`
	DiscountType   string        `json:"discount_type" validate:"omitempty,oneof=amount percentage"`
	TaxRateID      *int64        `json:"tax_rate_id" validate:"omitempty,gt=0"`
	// Client computed totals are ignored.
	TotalAmount ledger.Amount `json:"total_amount"`
	TotalTax    ledger.Amount `json:"total_tax"`
}

// Pricing is the persisted document level money state.
type Pricing struct {
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	DiscountType   ledger.DiscountType `json:"discount_type"`
	TaxRateID      *int64              `json:"tax_rate_id"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	TotalTax       decimal.Decimal     `json:"total_tax"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
}

// Request returns the pricing settings as a request, for recomputation.
func (p Pricing) Request() PricingRequest {
	return PricingRequest{
		DiscountAmount: ledger.NewAmount(p.DiscountAmount),
		DiscountType:   string(p.DiscountType),
		TaxRateID:      p.TaxRateID,
	}
}

// Priced is the outcome of Price.
type Priced struct {
	Lines   []ledger.Line
	Pricing Pricing
	Totals  ledger.Totals
}

// ValidateLines checks the submitted lines before they are priced.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return shared.NewValidationError("lines", "at least one line item is required")
	}
	if len(lines) > MaxLines {
		return shared.NewValidationError("lines", fmt.Sprintf("at most %d line items are allowed", MaxLines))
	}
	fields := shared.FieldErrors{}
	for i, l := range lines {
		if err := shared.ValidateStruct(l); err != nil {
			var verr *shared.ValidationError
			if errors.As(err, &verr) {
				for k, v := range verr.Fields {
					fields[fmt.Sprintf("lines[%d].%s", i, k)] = v
				}
				continue
			}
			return err
		}
		in := l.Input()
		if in.ItemNumber == "" && in.Description == "" {
			fields[fmt.Sprintf("lines[%d].description", i)] = "item number or description is required"
		}
		if in.Quantity.IsNegative() {
			fields[fmt.Sprintf("lines[%d].quantity", i)] = "must not be negative"
		}
		for name, v := range map[string]decimal.Decimal{
			"quantity":                     in.Quantity,
			"unit_price":                   in.UnitPrice,
			"sales_tax_applicable":         in.SalesTaxApplicable,
			"sales_tax_withheld_at_source": in.SalesTaxWithheldAtSource,
			"extra_tax":                    in.ExtraTax,
			"further_tax":                  in.FurtherTax,
			"discount":                     in.Discount,
		} {
			if v.Abs().GreaterThanOrEqual(MaxLineAmount) {
				fields[fmt.Sprintf("lines[%d].%s", i, name)] = "is too large"
			}
		}
		if computed := ledger.ComputeLine(in); computed.ValueSalesExcludingST.Abs().GreaterThanOrEqual(MaxLineAmount) ||
			computed.Total.Abs().GreaterThanOrEqual(MaxLineAmount) {
			fields[fmt.Sprintf("lines[%d].total", i)] = "is too large"
		}
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

// Price computes every line and the document totals. Totals sent by the
// client are ignored. A referenced tax rate must belong to the caller's
// company.
func Price(ctx context.Context, rates TaxRates, req PricingRequest, inputs []ledger.LineInput) (Priced, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Priced{}, err
	}
	discountType, err := ledger.ParseDiscountType(req.DiscountType)
	if err != nil {
		return Priced{}, shared.NewValidationError("discount_type", "must be amount or percentage")
	}
	if req.DiscountAmount.IsNegative() {
		return Priced{}, shared.NewValidationError("discount_amount", "must not be negative")
	}

	var ratePercent *decimal.Decimal
	if req.TaxRateID != nil {
		rate, err := rates.Resolve(ctx, *req.TaxRateID)
		if err != nil {
			return Priced{}, err
		}
		ratePercent = &rate.RatePercent
	}

	lines := ledger.ComputeLines(inputs)
	totals := ledger.Aggregate(lines, ledger.Discount{Type: discountType, Value: req.DiscountAmount.Decimal}, ratePercent)
	return Priced{
		Lines:  lines,
		Totals: totals,
		Pricing: Pricing{
			DiscountAmount: req.DiscountAmount.Decimal,
			DiscountType:   discountType,
			TaxRateID:      req.TaxRateID,
			Subtotal:       totals.Subtotal,
			TotalTax:       totals.TaxAmount,
			TotalAmount:    totals.GrandTotal,
		},
	}, nil
}

// Inputs converts submitted lines to calculator input.
func Inputs(lines []LineRequest) []ledger.LineInput {
	out := make([]ledger.LineInput, len(lines))
	for i, l := range lines {
		out[i] = l.Input()
	}
	return out
}

// ParseDate parses a required YYYY-MM-DD field.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, shared.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

// ParseOptionalDate parses an optional YYYY-MM-DD field.
func ParseOptionalDate(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := ParseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
