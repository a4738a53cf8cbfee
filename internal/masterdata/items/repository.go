package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

// Repository persists catalog items, scoped by company.
type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Item, int, error)
	All(ctx context.Context, companyID int64) ([]Item, error)
	Get(ctx context.Context, companyID, id int64) (Item, error)
	Create(ctx context.Context, it Item) (Item, error)
	Upsert(ctx context.Context, batch []Item) (int, error)
	Update(ctx context.Context, it Item) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, company_id, item_number, description, uom, unit_price, sales_tax_applicable, extra_tax, further_tax, created_at, updated_at`

var sortColumns = map[string]string{
	"item_number": "item_number",
	"description": "description",
	"unit_price":  "unit_price",
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.ItemNumber, &it.Description, &it.UOM,
		&it.UnitPrice, &it.SalesTaxApplicable, &it.ExtraTax, &it.FurtherTax, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Item, int, error) {
	where := `WHERE company_id = $1`
	args := []any{companyID}
	if filters.Search != "" {
		where += ` AND (item_number ILIKE $2 OR description ILIKE $2)`
		args = append(args, filters.SearchPattern())
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("items: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		itemColumns, where, filters.OrderBy(sortColumns, "item_number"), len(args)+1, len(args)+2)
	args = append(args, filters.Limit(), filters.Offset())

	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) All(ctx context.Context, companyID int64) ([]Item, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id = $1 ORDER BY item_number`, companyID)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("items: list: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 AND company_id = $2`, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("items: get: %w", err)
	}
	return it, nil
}

func (r *repository) Create(ctx context.Context, it Item) (Item, error) {
	created, err := scanItem(r.pool.QueryRow(ctx, `
INSERT INTO items (company_id, item_number, description, uom, unit_price, sales_tax_applicable, extra_tax, further_tax)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+itemColumns,
		it.CompanyID, it.ItemNumber, it.Description, it.UOM, it.UnitPrice, it.SalesTaxApplicable, it.ExtraTax, it.FurtherTax))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Item{}, ErrDuplicate
		}
		return Item{}, fmt.Errorf("items: create: %w", err)
	}
	return created, nil
}

// Upsert inserts or refreshes items by item number in one transaction.
func (r *repository) Upsert(ctx context.Context, batch []Item) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, it := range batch {
			b.Queue(`
INSERT INTO items (company_id, item_number, description, uom, unit_price, sales_tax_applicable, extra_tax, further_tax)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (company_id, item_number) DO UPDATE
SET description = EXCLUDED.description,
    uom = EXCLUDED.uom,
    unit_price = EXCLUDED.unit_price,
    sales_tax_applicable = EXCLUDED.sales_tax_applicable,
    extra_tax = EXCLUDED.extra_tax,
    further_tax = EXCLUDED.further_tax,
    updated_at = NOW()`,
				it.CompanyID, it.ItemNumber, it.Description, it.UOM, it.UnitPrice, it.SalesTaxApplicable, it.ExtraTax, it.FurtherTax)
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("items: import: %w", err)
	}
	return len(batch), nil
}

func (r *repository) Update(ctx context.Context, it Item) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE items
SET item_number = $3, description = $4, uom = $5, unit_price = $6,
    sales_tax_applicable = $7, extra_tax = $8, further_tax = $9, updated_at = NOW()
WHERE id = $1 AND company_id = $2`,
		it.ID, it.CompanyID, it.ItemNumber, it.Description, it.UOM, it.UnitPrice, it.SalesTaxApplicable, it.ExtraTax, it.FurtherTax)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("items: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("items: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
