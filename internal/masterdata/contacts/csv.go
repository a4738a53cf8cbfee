package contacts

import (
	"github.com/arkhan2/invoicing-system-sub001/internal/csvio"
)

var csvHeader = []string{"name", "email", "phone", "tax_number", "address"}

// RequestFromRecord maps an imported row. Rows without a name are skipped.
func RequestFromRecord(rec csvio.Record) *Request {
	name := rec.Get("name", "customer_name", "vendor_name", "company", "company_name")
	if name == "" {
		return nil
	}
	return &Request{
		Name:      name,
		Email:     rec.Get("email", "email_address"),
		Phone:     rec.Get("phone", "phone_number", "mobile"),
		TaxNumber: rec.Get("tax_number", "ntn", "strn", "tax_id"),
		Address:   rec.Get("address"),
	}
}

func csvRow(c Contact) []string {
	return []string{c.Name, c.Email, c.Phone, c.TaxNumber, c.Address}
}
