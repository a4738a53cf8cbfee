package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Repository reads invoices and opens write transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID int64, kind Kind, id int64) (Invoice, error)
	List(ctx context.Context, companyID int64, kind Kind, filter documents.ListFilter) ([]Invoice, int, error)
	All(ctx context.Context, companyID int64, kind Kind) ([]Invoice, error)
}

// TxRepository is the write surface available inside a transaction. It also
// issues numbers so an invoice and its number commit together.
type TxRepository interface {
	numbering.Store
	Insert(ctx context.Context, inv *Invoice) error
	LockInvoice(ctx context.Context, companyID int64, kind Kind, id int64) (Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	SetStatus(ctx context.Context, companyID, id int64, status Status) error
	AllocatedTotal(ctx context.Context, id int64) (decimal.Decimal, error)
	Delete(ctx context.Context, companyID, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const invoiceColumns = `id, company_id, kind, number, contact_id, invoice_date, due_date, status, estimate_id,
discount_amount, discount_type, tax_rate_id, subtotal, total_tax, total_amount, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Kind, &inv.Number, &inv.ContactID, &inv.InvoiceDate, &inv.DueDate,
		&inv.Status, &inv.EstimateID, &inv.DiscountAmount, &inv.DiscountType, &inv.TaxRateID, &inv.Subtotal,
		&inv.TotalTax, &inv.TotalAmount, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func (r *repository) Get(ctx context.Context, companyID int64, kind Kind, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND company_id = $2 AND kind = $3`, id, companyID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: get: %w", err)
	}
	inv.Lines, err = documents.LoadLines(ctx, r.pool, documents.InvoiceLines, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) List(ctx context.Context, companyID int64, kind Kind, filter documents.ListFilter) ([]Invoice, int, error) {
	where, args := filter.Where(`WHERE company_id = $1 AND kind = $2`, []any{companyID, kind}, "invoice_date", "contact_id")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoices: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit(), filter.Offset())
	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) All(ctx context.Context, companyID int64, kind Kind) ([]Invoice, error) {
	return r.query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id = $1 AND kind = $2 ORDER BY invoice_date, id`,
		companyID, kind)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type txRepository struct {
	numbering.Store
	tx    db.DBTX
	audit *shared.AuditLogger
}

// NewTxRepository binds the invoice write statements to tx. Estimate
// conversion uses it to insert the invoice inside its own transaction.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{Store: numbering.NewStore(tx), tx: tx, audit: shared.NewAuditLogger(tx)}
}

func (r *txRepository) Insert(ctx context.Context, inv *Invoice) error {
	err := r.tx.QueryRow(ctx, `
INSERT INTO invoices (company_id, kind, number, contact_id, invoice_date, due_date, status, estimate_id,
	discount_amount, discount_type, tax_rate_id, subtotal, total_tax, total_amount, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id, created_at, updated_at`,
		inv.CompanyID, inv.Kind, inv.Number, inv.ContactID, inv.InvoiceDate, inv.DueDate, inv.Status, inv.EstimateID,
		inv.DiscountAmount, inv.DiscountType, inv.TaxRateID, inv.Subtotal, inv.TotalTax, inv.TotalAmount, inv.Notes,
		inv.CreatedBy).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("invoices: insert: %w", err)
	}
	return documents.InsertLines(ctx, r.tx, documents.InvoiceLines, inv.ID, inv.Lines)
}

func (r *txRepository) LockInvoice(ctx context.Context, companyID int64, kind Kind, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND company_id = $2 AND kind = $3 FOR UPDATE`, id, companyID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: lock: %w", err)
	}
	return inv, nil
}

func (r *txRepository) Update(ctx context.Context, inv *Invoice) error {
	err := r.tx.QueryRow(ctx, `
UPDATE invoices
SET contact_id = $3, invoice_date = $4, due_date = $5, discount_amount = $6, discount_type = $7, tax_rate_id = $8,
	subtotal = $9, total_tax = $10, total_amount = $11, notes = $12, updated_at = NOW()
WHERE id = $1 AND company_id = $2
RETURNING updated_at`,
		inv.ID, inv.CompanyID, inv.ContactID, inv.InvoiceDate, inv.DueDate, inv.DiscountAmount, inv.DiscountType,
		inv.TaxRateID, inv.Subtotal, inv.TotalTax, inv.TotalAmount, inv.Notes).Scan(&inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("invoices: update: %w", err)
	}
	return documents.ReplaceLines(ctx, r.tx, documents.InvoiceLines, inv.ID, inv.Lines)
}

func (r *txRepository) SetStatus(ctx context.Context, companyID, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status = $3, updated_at = NOW() WHERE id = $1 AND company_id = $2`,
		id, companyID, status)
	if err != nil {
		return fmt.Errorf("invoices: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) AllocatedTotal(ctx context.Context, id int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(allocated_amount), 0) FROM payment_allocations WHERE invoice_id = $1`, id).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("invoices: allocated total: %w", err)
	}
	return total, nil
}

func (r *txRepository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrHasAllocations
		}
		return fmt.Errorf("invoices: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return r.audit.Record(ctx, log)
}
