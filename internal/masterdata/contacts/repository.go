package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/masterdata/shared"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

// Repository persists contacts. Find is the only unscoped lookup.
type Repository interface {
	List(ctx context.Context, companyID int64, kind Kind, filters shared.ListFilters) ([]Contact, int, error)
	All(ctx context.Context, companyID int64, kind Kind) ([]Contact, error)
	Get(ctx context.Context, companyID int64, kind Kind, id int64) (Contact, error)
	Find(ctx context.Context, id int64) (Contact, error)
	Create(ctx context.Context, c Contact) (Contact, error)
	CreateBatch(ctx context.Context, batch []Contact) (int, error)
	Update(ctx context.Context, c Contact) error
	Delete(ctx context.Context, companyID int64, kind Kind, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const contactColumns = `id, company_id, kind, name, email, phone, tax_number, address, created_at, updated_at`

var sortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CompanyID, &c.Kind, &c.Name, &c.Email, &c.Phone, &c.TaxNumber, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) List(ctx context.Context, companyID int64, kind Kind, filters shared.ListFilters) ([]Contact, int, error) {
	where := `WHERE company_id = $1 AND kind = $2`
	args := []any{companyID, kind}
	if filters.Search != "" {
		where += ` AND (name ILIKE $3 OR email ILIKE $3 OR tax_number ILIKE $3)`
		args = append(args, filters.SearchPattern())
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("contacts: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM contacts %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		contactColumns, where, filters.OrderBy(sortColumns, "name"), len(args)+1, len(args)+2)
	args = append(args, filters.Limit(), filters.Offset())

	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) All(ctx context.Context, companyID int64, kind Kind) ([]Contact, error) {
	return r.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE company_id = $1 AND kind = $2 ORDER BY name, id`, companyID, kind)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contacts: list: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID int64, kind Kind, id int64) (Contact, error) {
	return r.one(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND company_id = $2 AND kind = $3`, id, companyID, kind)
}

func (r *repository) Find(ctx context.Context, id int64) (Contact, error) {
	return r.one(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
}

func (r *repository) one(ctx context.Context, query string, args ...any) (Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("contacts: get: %w", err)
	}
	return c, nil
}

const insertContact = `
INSERT INTO contacts (company_id, kind, name, email, phone, tax_number, address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + contactColumns

func (r *repository) Create(ctx context.Context, c Contact) (Contact, error) {
	created, err := scanContact(r.pool.QueryRow(ctx, insertContact,
		c.CompanyID, c.Kind, c.Name, c.Email, c.Phone, c.TaxNumber, c.Address))
	if err != nil {
		return Contact{}, fmt.Errorf("contacts: create: %w", err)
	}
	return created, nil
}

// CreateBatch inserts every contact in one transaction using a pgx batch.
func (r *repository) CreateBatch(ctx context.Context, contacts []Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range contacts {
			batch.Queue(`INSERT INTO contacts (company_id, kind, name, email, phone, tax_number, address) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.CompanyID, c.Kind, c.Name, c.Email, c.Phone, c.TaxNumber, c.Address)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("contacts: import: %w", err)
	}
	return len(contacts), nil
}

func (r *repository) Update(ctx context.Context, c Contact) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE contacts
SET name = $4, email = $5, phone = $6, tax_number = $7, address = $8, updated_at = NOW()
WHERE id = $1 AND company_id = $2 AND kind = $3`,
		c.ID, c.CompanyID, c.Kind, c.Name, c.Email, c.Phone, c.TaxNumber, c.Address)
	if err != nil {
		return fmt.Errorf("contacts: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID int64, kind Kind, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND company_id = $2 AND kind = $3`, id, companyID, kind)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("contacts: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
