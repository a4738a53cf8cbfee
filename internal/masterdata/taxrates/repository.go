package taxrates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

// Repository persists tax rates. Every method except Find is scoped to a
// company; Find is used to tell a foreign reference from a missing one.
type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]TaxRate, int, error)
	Get(ctx context.Context, companyID, id int64) (TaxRate, error)
	Find(ctx context.Context, id int64) (TaxRate, error)
	Create(ctx context.Context, rate TaxRate) (TaxRate, error)
	Update(ctx context.Context, rate TaxRate) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var sortColumns = map[string]string{
	"name": "name",
	"rate": "rate_percent",
}

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]TaxRate, int, error) {
	where := `WHERE company_id = $1`
	args := []any{companyID}
	if filters.Search != "" {
		where += ` AND name ILIKE $2`
		args = append(args, filters.SearchPattern())
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tax_rates `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("taxrates: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, company_id, name, rate_percent, created_at FROM tax_rates %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		where, filters.OrderBy(sortColumns, "name"), len(args)+1, len(args)+2)
	args = append(args, filters.Limit(), filters.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("taxrates: list: %w", err)
	}
	defer rows.Close()

	var out []TaxRate
	for rows.Next() {
		var t TaxRate
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.RatePercent, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (TaxRate, error) {
	return r.scanOne(ctx, `SELECT id, company_id, name, rate_percent, created_at FROM tax_rates WHERE id = $1 AND company_id = $2`, id, companyID)
}

func (r *repository) Find(ctx context.Context, id int64) (TaxRate, error) {
	return r.scanOne(ctx, `SELECT id, company_id, name, rate_percent, created_at FROM tax_rates WHERE id = $1`, id)
}

func (r *repository) scanOne(ctx context.Context, query string, args ...any) (TaxRate, error) {
	var t TaxRate
	err := r.pool.QueryRow(ctx, query, args...).Scan(&t.ID, &t.CompanyID, &t.Name, &t.RatePercent, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxRate{}, ErrNotFound
	}
	if err != nil {
		return TaxRate{}, fmt.Errorf("taxrates: get: %w", err)
	}
	return t, nil
}

func (r *repository) Create(ctx context.Context, rate TaxRate) (TaxRate, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO tax_rates (company_id, name, rate_percent)
VALUES ($1, $2, $3)
RETURNING id, created_at`, rate.CompanyID, rate.Name, rate.RatePercent).Scan(&rate.ID, &rate.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return TaxRate{}, ErrDuplicate
		}
		return TaxRate{}, fmt.Errorf("taxrates: create: %w", err)
	}
	return rate, nil
}

func (r *repository) Update(ctx context.Context, rate TaxRate) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tax_rates SET name = $3, rate_percent = $4 WHERE id = $1 AND company_id = $2`,
		rate.ID, rate.CompanyID, rate.Name, rate.RatePercent)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("taxrates: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tax_rates WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("taxrates: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
