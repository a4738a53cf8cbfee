// Package shared holds list helpers common to the master data packages.
package shared

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)
