package shared

import (
	"net/url"
	"strings"

	internalShared "github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// ListFilters represents standard list page filters.
type ListFilters struct {
	internalShared.PageRequest
	Search  string
	SortBy  string
	SortDir string
}

// FiltersFromQuery reads page, per_page, search, sort and dir.
func FiltersFromQuery(q url.Values) ListFilters {
	return ListFilters{
		PageRequest: internalShared.PageFromQuery(q),
		Search:      strings.TrimSpace(q.Get("search")),
		SortBy:      q.Get("sort"),
		SortDir:     q.Get("dir"),
	}
}

// OrderBy returns a safe ORDER BY clause. Only columns present in allowed are
// accepted; anything else falls back to def.
func (f ListFilters) OrderBy(allowed map[string]string, def string) string {
	col, ok := allowed[f.SortBy]
	if !ok {
		col = def
	}
	dir := "ASC"
	if strings.EqualFold(f.SortDir, SortDesc) {
		dir = "DESC"
	}
	return col + " " + dir + ", id " + dir
}

// SearchPattern returns an ILIKE pattern for the search term.
func (f ListFilters) SearchPattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(f.Search) + "%"
}
