// Package csvio reads and writes the CSV files used for bulk import and
// export. Rows are exchanged as header keyed records.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// MaxRecords bounds a single import.
const MaxRecords = 10000

// Record is one data row keyed by normalised header name.
type Record map[string]string

// Get returns the first non-blank value among keys.
func (r Record) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeHeader lower-cases a header cell and turns separators into
// underscores, so "Unit Price" and "unit-price" both become "unit_price".
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}

// ReadRecords parses a CSV stream whose first row is the header. Blank rows
// are dropped; short rows leave the missing columns empty.
func ReadRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv file is empty", shared.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", shared.ErrValidation, err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = NormalizeHeader(h)
	}

	var out []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", shared.ErrValidation, err)
		}
		if blank(row) {
			continue
		}
		if len(out) == MaxRecords {
			return nil, fmt.Errorf("%w: csv has more than %d rows", shared.ErrValidation, MaxRecords)
		}
		rec := make(Record, len(keys))
		for i, k := range keys {
			if k == "" || i >= len(row) {
				continue
			}
			rec[k] = strings.TrimSpace(row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// WriteRecords writes header followed by rows.
func WriteRecords(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
