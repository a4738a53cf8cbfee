package documents

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// ListFilter narrows document listings.
type ListFilter struct {
	shared.PageRequest
	Status    string
	ContactID int64
	From      *time.Time
	To        *time.Time
	Search    string
}

// FilterFromQuery reads status, contact, from, to and search together with
// the paging parameters. contactParam names the contact query key, for
// example customer_id.
func FilterFromQuery(q url.Values, contactParam string) (ListFilter, error) {
	f := ListFilter{
		PageRequest: shared.PageFromQuery(q),
		Status:      strings.TrimSpace(q.Get("status")),
		Search:      strings.TrimSpace(q.Get("search")),
	}
	if raw := strings.TrimSpace(q.Get(contactParam)); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return ListFilter{}, shared.NewValidationError(contactParam, "must be a positive integer")
		}
		f.ContactID = id
	}
	var err error
	if f.From, err = ParseOptionalDate("from", q.Get("from")); err != nil {
		return ListFilter{}, err
	}
	if f.To, err = ParseOptionalDate("to", q.Get("to")); err != nil {
		return ListFilter{}, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return ListFilter{}, shared.NewValidationError("to", "must not be before from")
	}
	return f, nil
}

// Where appends the filter conditions to a WHERE clause that already binds
// len(args) parameters.
func (f ListFilter) Where(where string, args []any, dateColumn, contactColumn string) (string, []any) {
	add := func(cond string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ContactID > 0 {
		add(contactColumn+" = $%d", f.ContactID)
	}
	if f.From != nil {
		add(dateColumn+" >= $%d", *f.From)
	}
	if f.To != nil {
		add(dateColumn+" <= $%d", *f.To)
	}
	if f.Search != "" {
		r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
		add("(number ILIKE $%d)", "%"+r.Replace(f.Search)+"%")
	}
	return where, args
}
