package render

import (
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
)

// Formatter prints money and quantities for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter parses locale, falling back to English.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return Formatter{tag: tag, printer: message.NewPrinter(tag)}
}

// Locale is the BCP 47 tag in use.
func (f Formatter) Locale() string { return f.tag.String() }

// Money formats d with grouping and exactly two decimals.
func (f Formatter) Money(d decimal.Decimal) string {
	return f.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(),
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Quantity formats d with grouping and up to four decimals.
func (f Formatter) Quantity(d decimal.Decimal) string {
	return f.printer.Sprint(number.Decimal(d.Round(4).InexactFloat64(), number.MaxFractionDigits(4)))
}

// Date formats t as an ISO calendar date.
func (f Formatter) Date(t any) string {
	switch v := t.(type) {
	case time.Time:
		return v.Format(time.DateOnly)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.Format(time.DateOnly)
	}
	return ""
}

func (f Formatter) funcs() template.FuncMap {
	return template.FuncMap{
		"money": f.Money,
		"qty":   f.Quantity,
		"date":  f.Date,
		"lineTax": func(l ledger.Line) decimal.Decimal {
			return l.SalesTaxApplicable.Add(l.ExtraTax).Add(l.FurtherTax).Sub(l.SalesTaxWithheldAtSource)
		},
	}
}
