package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

const idempotencyModule = "payments"

// Repository reads payments and opens write transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (Payment, error)
	List(ctx context.Context, companyID int64, filter Filter) ([]Payment, int, error)
	Invoice(ctx context.Context, companyID, invoiceID int64) (InvoiceRef, error)
	InvoiceAllocations(ctx context.Context, companyID, invoiceID int64) ([]Allocation, error)
}

// TxRepository is the write surface of a transaction. Callers lock the
// payment before the invoice.
type TxRepository interface {
	ClaimIdempotencyKey(ctx context.Context, companyID int64, key string) error
	Insert(ctx context.Context, p *Payment) error
	LockPayment(ctx context.Context, companyID, id int64) (Payment, error)
	LockInvoice(ctx context.Context, companyID, invoiceID int64) (InvoiceRef, error)
	PaymentAllocated(ctx context.Context, paymentID int64) (decimal.Decimal, error)
	InvoiceAllocated(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertAllocation(ctx context.Context, a *Allocation) error
	FindAllocation(ctx context.Context, companyID, id int64) (Allocation, error)
	DeleteAllocation(ctx context.Context, companyID, id int64) error
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
		return fn(ctx, &txRepository{
			tx:          tx,
			idempotency: shared.NewIdempotencyStore(tx),
			audit:       shared.NewAuditLogger(tx),
		})
	})
}

const paymentColumns = `p.id, p.company_id, p.direction, p.contact_id, p.payment_date, p.method, p.reference,
p.gross_amount, p.notes, p.created_by, p.created_at`

const allocatedSum = `COALESCE((SELECT SUM(a.allocated_amount) FROM payment_allocations a WHERE a.payment_id = p.id), 0)`

func scanPayment(row pgx.Row, withAllocated bool) (Payment, error) {
	var p Payment
	dest := []any{&p.ID, &p.CompanyID, &p.Direction, &p.ContactID, &p.PaymentDate, &p.Method, &p.Reference,
		&p.GrossAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt}
	if withAllocated {
		dest = append(dest, &p.Allocated)
	}
	if err := row.Scan(dest...); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1 AND p.company_id = $2`, id, companyID), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("payments: get: %w", err)
	}
	p.Allocations, err = r.allocations(ctx, `a.payment_id = $1 AND a.company_id = $2`, id, companyID)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, companyID int64, filter Filter) ([]Payment, int, error) {
	where := `WHERE p.company_id = $1`
	args := []any{companyID}
	add := func(cond string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if filter.Direction != "" {
		add("p.direction = $%d", filter.Direction)
	}
	if filter.ContactID > 0 {
		add("p.contact_id = $%d", filter.ContactID)
	}
	if filter.From != nil {
		add("p.payment_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("p.payment_date <= $%d", *filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments p `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("payments: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM payments p %s ORDER BY p.payment_date DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, allocatedSum, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit(), filter.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows, true)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

const invoiceRefColumns = `id, kind, number, contact_id, status, total_amount`

func scanInvoiceRef(row pgx.Row) (InvoiceRef, error) {
	var inv InvoiceRef
	err := row.Scan(&inv.ID, &inv.Kind, &inv.Number, &inv.ContactID, &inv.Status, &inv.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return InvoiceRef{}, ErrInvoiceNotFound
	}
	if err != nil {
		return InvoiceRef{}, fmt.Errorf("payments: invoice: %w", err)
	}
	return inv, nil
}

func (r *repository) Invoice(ctx context.Context, companyID, invoiceID int64) (InvoiceRef, error) {
	return scanInvoiceRef(r.pool.QueryRow(ctx,
		`SELECT `+invoiceRefColumns+` FROM invoices WHERE id = $1 AND company_id = $2`, invoiceID, companyID))
}

func (r *repository) InvoiceAllocations(ctx context.Context, companyID, invoiceID int64) ([]Allocation, error) {
	return r.allocations(ctx, `a.invoice_id = $1 AND a.company_id = $2`, invoiceID, companyID)
}

func (r *repository) allocations(ctx context.Context, where string, args ...any) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `
SELECT a.id, a.company_id, a.payment_id, a.invoice_id, i.number, a.allocated_amount, a.created_at
FROM payment_allocations a
JOIN invoices i ON i.id = a.invoice_id
WHERE `+where+`
ORDER BY a.created_at, a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("payments: allocations: %w", err)
	}
	defer rows.Close()

	out := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.PaymentID, &a.InvoiceID, &a.InvoiceNumber, &a.AllocatedAmount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx          pgx.Tx
	idempotency *shared.IdempotencyStore
	audit       *shared.AuditLogger
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, companyID int64, key string) error {
	return r.idempotency.CheckAndInsert(ctx, r.tx, companyID, key, idempotencyModule)
}

func (r *txRepository) Insert(ctx context.Context, p *Payment) error {
	err := r.tx.QueryRow(ctx, `
INSERT INTO payments (company_id, direction, contact_id, payment_date, method, reference, gross_amount, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		p.CompanyID, p.Direction, p.ContactID, p.PaymentDate, p.Method, p.Reference, p.GrossAmount, p.Notes, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert: %w", err)
	}
	return nil
}

func (r *txRepository) LockPayment(ctx context.Context, companyID, id int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1 AND p.company_id = $2 FOR UPDATE`, id, companyID), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("payments: lock: %w", err)
	}
	return p, nil
}

func (r *txRepository) LockInvoice(ctx context.Context, companyID, invoiceID int64) (InvoiceRef, error) {
	return scanInvoiceRef(r.tx.QueryRow(ctx,
		`SELECT `+invoiceRefColumns+` FROM invoices WHERE id = $1 AND company_id = $2 FOR UPDATE`, invoiceID, companyID))
}

func (r *txRepository) PaymentAllocated(ctx context.Context, paymentID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `payment_id`, paymentID)
}

func (r *txRepository) InvoiceAllocated(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	return r.sum(ctx, `invoice_id`, invoiceID)
}

func (r *txRepository) sum(ctx context.Context, column string, id int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(allocated_amount), 0) FROM payment_allocations WHERE `+column+` = $1`, id).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments: sum by %s: %w", column, err)
	}
	return total, nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, a *Allocation) error {
	err := r.tx.QueryRow(ctx, `
INSERT INTO payment_allocations (company_id, payment_id, invoice_id, allocated_amount)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`, a.CompanyID, a.PaymentID, a.InvoiceID, a.AllocatedAmount).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert allocation: %w", err)
	}
	return nil
}

func (r *txRepository) FindAllocation(ctx context.Context, companyID, id int64) (Allocation, error) {
	var a Allocation
	err := r.tx.QueryRow(ctx, `
SELECT id, company_id, payment_id, invoice_id, allocated_amount, created_at
FROM payment_allocations
WHERE id = $1 AND company_id = $2`, id, companyID).
		Scan(&a.ID, &a.CompanyID, &a.PaymentID, &a.InvoiceID, &a.AllocatedAmount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Allocation{}, ErrAllocationNotFound
	}
	if err != nil {
		return Allocation{}, fmt.Errorf("payments: find allocation: %w", err)
	}
	return a, nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payment_allocations WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("payments: delete allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("payments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return r.audit.Record(ctx, log)
}
