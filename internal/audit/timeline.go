package audit

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TimelineFilters narrows the audit timeline of one company.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs record.
type TimelineRow struct {
	ID       int64           `json:"id"`
	At       time.Time       `json:"at"`
	ActorID  int64           `json:"actor_id"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo is look-ahead paging metadata; the total is never counted.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// FiltersFromQuery parses ?from=&to= (YYYY-MM-DD), actor, entity, entity_id,
// action, page and page_size. Unparseable values are ignored.
func FiltersFromQuery(q url.Values) TimelineFilters {
	f := TimelineFilters{
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
	}
	if t, err := time.Parse(time.DateOnly, q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse(time.DateOnly, q.Get("to")); err == nil {
		// inclusive end of day
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	f.ActorID, _ = strconv.ParseInt(q.Get("actor"), 10, 64)
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return f
}
