package estimates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/documents"
	"github.com/arkhan2/invoicing-system-sub001/internal/invoices"
	"github.com/arkhan2/invoicing-system-sub001/internal/ledger"
	"github.com/arkhan2/invoicing-system-sub001/internal/numbering"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Repository reads estimates and opens write transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (Estimate, error)
	List(ctx context.Context, companyID int64, filter documents.ListFilter) ([]Estimate, int, error)
	All(ctx context.Context, companyID int64) ([]Estimate, error)
	// ExpireBefore moves draft and sent estimates of every company whose
	// valid_until is earlier than day to expired.
	ExpireBefore(ctx context.Context, day time.Time) (int64, error)
}

// TxRepository is the write surface of a transaction. It can issue numbers
// and insert invoices so a conversion commits or fails as a whole.
type TxRepository interface {
	numbering.Store
	Insert(ctx context.Context, est *Estimate) error
	LockEstimate(ctx context.Context, companyID, id int64) (Estimate, error)
	Lines(ctx context.Context, id int64) ([]ledger.Line, error)
	Update(ctx context.Context, est *Estimate) error
	SetStatus(ctx context.Context, companyID, id int64, status Status) error
	Delete(ctx context.Context, companyID, id int64) error
	InsertInvoice(ctx context.Context, inv *invoices.Invoice) error
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
		return fn(ctx, &txRepository{Store: numbering.NewStore(tx), tx: tx, invoices: invoices.NewTxRepository(tx), audit: shared.NewAuditLogger(tx)})
	})
}

const estimateColumns = `id, company_id, number, customer_id, estimate_date, valid_until, status,
discount_amount, discount_type, tax_rate_id, subtotal, total_tax, total_amount, notes, created_by, created_at, updated_at`

func scanEstimate(row pgx.Row) (Estimate, error) {
	var e Estimate
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.CustomerID, &e.EstimateDate, &e.ValidUntil, &e.Status,
		&e.DiscountAmount, &e.DiscountType, &e.TaxRateID, &e.Subtotal, &e.TotalTax, &e.TotalAmount, &e.Notes,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Estimate, error) {
	e, err := scanEstimate(r.pool.QueryRow(ctx,
		`SELECT `+estimateColumns+` FROM estimates WHERE id = $1 AND company_id = $2`, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Estimate{}, ErrNotFound
	}
	if err != nil {
		return Estimate{}, fmt.Errorf("estimates: get: %w", err)
	}
	if e.Status == StatusConverted {
		var invoiceID int64
		err := r.pool.QueryRow(ctx, `SELECT id FROM invoices WHERE estimate_id = $1`, e.ID).Scan(&invoiceID)
		switch {
		case err == nil:
			e.InvoiceID = &invoiceID
		case !errors.Is(err, pgx.ErrNoRows):
			return Estimate{}, fmt.Errorf("estimates: converted invoice: %w", err)
		}
	}
	e.Lines, err = documents.LoadLines(ctx, r.pool, documents.EstimateLines, e.ID)
	if err != nil {
		return Estimate{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, companyID int64, filter documents.ListFilter) ([]Estimate, int, error) {
	where, args := filter.Where(`WHERE company_id = $1`, []any{companyID}, "estimate_date", "customer_id")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM estimates `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("estimates: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM estimates %s ORDER BY estimate_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		estimateColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit(), filter.Offset())
	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) All(ctx context.Context, companyID int64) ([]Estimate, error) {
	return r.query(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE company_id = $1 ORDER BY estimate_date, id`, companyID)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Estimate, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("estimates: list: %w", err)
	}
	defer rows.Close()

	out := []Estimate{}
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) ExpireBefore(ctx context.Context, day time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE estimates
SET status = 'expired', updated_at = NOW()
WHERE status IN ('draft', 'sent') AND valid_until IS NOT NULL AND valid_until < $1`, day)
	if err != nil {
		return 0, fmt.Errorf("estimates: expire: %w", err)
	}
	return tag.RowsAffected(), nil
}

type txRepository struct {
	numbering.Store
	tx       pgx.Tx
	invoices invoices.TxRepository
	audit    *shared.AuditLogger
}

func (r *txRepository) Insert(ctx context.Context, e *Estimate) error {
	err := r.tx.QueryRow(ctx, `
INSERT INTO estimates (company_id, number, customer_id, estimate_date, valid_until, status,
	discount_amount, discount_type, tax_rate_id, subtotal, total_tax, total_amount, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, created_at, updated_at`,
		e.CompanyID, e.Number, e.CustomerID, e.EstimateDate, e.ValidUntil, e.Status, e.DiscountAmount, e.DiscountType,
		e.TaxRateID, e.Subtotal, e.TotalTax, e.TotalAmount, e.Notes, e.CreatedBy).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("estimates: insert: %w", err)
	}
	return documents.InsertLines(ctx, r.tx, documents.EstimateLines, e.ID, e.Lines)
}

func (r *txRepository) LockEstimate(ctx context.Context, companyID, id int64) (Estimate, error) {
	e, err := scanEstimate(r.tx.QueryRow(ctx,
		`SELECT `+estimateColumns+` FROM estimates WHERE id = $1 AND company_id = $2 FOR UPDATE`, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Estimate{}, ErrNotFound
	}
	if err != nil {
		return Estimate{}, fmt.Errorf("estimates: lock: %w", err)
	}
	return e, nil
}

func (r *txRepository) Lines(ctx context.Context, id int64) ([]ledger.Line, error) {
	return documents.LoadLines(ctx, r.tx, documents.EstimateLines, id)
}

func (r *txRepository) Update(ctx context.Context, e *Estimate) error {
	err := r.tx.QueryRow(ctx, `
UPDATE estimates
SET customer_id = $3, estimate_date = $4, valid_until = $5, discount_amount = $6, discount_type = $7,
	tax_rate_id = $8, subtotal = $9, total_tax = $10, total_amount = $11, notes = $12, updated_at = NOW()
WHERE id = $1 AND company_id = $2
RETURNING updated_at`,
		e.ID, e.CompanyID, e.CustomerID, e.EstimateDate, e.ValidUntil, e.DiscountAmount, e.DiscountType, e.TaxRateID,
		e.Subtotal, e.TotalTax, e.TotalAmount, e.Notes).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("estimates: update: %w", err)
	}
	return documents.ReplaceLines(ctx, r.tx, documents.EstimateLines, e.ID, e.Lines)
}

func (r *txRepository) SetStatus(ctx context.Context, companyID, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE estimates SET status = $3, updated_at = NOW() WHERE id = $1 AND company_id = $2`,
		id, companyID, status)
	if err != nil {
		return fmt.Errorf("estimates: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM estimates WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("estimates: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv *invoices.Invoice) error {
	return r.invoices.Insert(ctx, inv)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return r.audit.Record(ctx, log)
}
