package documents

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

// LineTable names a line table and the column pointing at its document.
type LineTable struct {
	Name        string
	OwnerColumn string
}

var (
	EstimateLines = LineTable{Name: "estimate_lines", OwnerColumn: "estimate_id"}
	InvoiceLines  = LineTable{Name: "invoice_lines", OwnerColumn: "invoice_id"}
)

const lineColumns = `item_number, description, uom, quantity, unit_price, value_sales_excluding_st,
sales_tax_applicable, sales_tax_withheld_at_source, extra_tax, further_tax, discount, total`

// InsertLines writes lines in order; sort_order is the slice index.
func InsertLines(ctx context.Context, q db.DBTX, table LineTable, ownerID int64, lines []ledger.Line) error {
	for i, l := range lines {
		_, err := q.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (%s, sort_order, %s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, table.Name, table.OwnerColumn, lineColumns),
			ownerID, i, l.ItemNumber, l.Description, l.UOM, l.Quantity, l.UnitPrice, l.ValueSalesExcludingST,
			l.SalesTaxApplicable, l.SalesTaxWithheldAtSource, l.ExtraTax, l.FurtherTax, l.Discount, l.Total)
		if err != nil {
			return fmt.Errorf("documents: insert %s row %d: %w", table.Name, i, err)
		}
	}
	return nil
}

// ReplaceLines deletes every line of the owner and writes lines in their place.
func ReplaceLines(ctx context.Context, q db.DBTX, table LineTable, ownerID int64, lines []ledger.Line) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table.Name, table.OwnerColumn), ownerID); err != nil {
		return fmt.Errorf("documents: delete %s: %w", table.Name, err)
	}
	return InsertLines(ctx, q, table, ownerID, lines)
}

// LoadLines reads the owner's lines in sort order.
func LoadLines(ctx context.Context, q db.DBTX, table LineTable, ownerID int64) ([]ledger.Line, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY sort_order, id`,
		lineColumns, table.Name, table.OwnerColumn), ownerID)
	if err != nil {
		return nil, fmt.Errorf("documents: load %s: %w", table.Name, err)
	}
	defer rows.Close()
	return scanLines(rows)
}

func scanLines(rows pgx.Rows) ([]ledger.Line, error) {
	out := []ledger.Line{}
	for rows.Next() {
		var l ledger.Line
		if err := rows.Scan(&l.ItemNumber, &l.Description, &l.UOM, &l.Quantity, &l.UnitPrice, &l.ValueSalesExcludingST,
			&l.SalesTaxApplicable, &l.SalesTaxWithheldAtSource, &l.ExtraTax, &l.FurtherTax, &l.Discount, &l.Total); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
