package numbering

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
)

// Store is the transaction scoped persistence the sequencer needs. Lock must
// create the row with the default prefix when missing and hold a row lock
// until the surrounding transaction ends.
type Store interface {
	Lock(ctx context.Context, companyID int64, docType DocType) (Sequence, error)
	Save(ctx context.Context, seq Sequence) error
}

// Repository exposes the sequences outside of document creation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	List(ctx context.Context, companyID int64) ([]Sequence, error)
}

type store struct {
	db db.DBTX
}

// NewStore binds the sequencer statements to q, normally a pgx.Tx owned by
// another package's repository.
func NewStore(q db.DBTX) Store {
	return &store{db: q}
}

func (s *store) Lock(ctx context.Context, companyID int64, docType DocType) (Sequence, error) {
	prefix := DefaultPrefix(docType)
	if prefix == "" {
		return Sequence{}, fmt.Errorf("%w: %s", ErrUnknownDocType, docType)
	}
	if _, err := s.db.Exec(ctx, `
INSERT INTO number_sequences (company_id, doc_type, prefix, next_number)
VALUES ($1, $2, $3, 1)
ON CONFLICT (company_id, doc_type) DO NOTHING`, companyID, docType, prefix); err != nil {
		return Sequence{}, fmt.Errorf("numbering: ensure sequence: %w", err)
	}

	seq := Sequence{CompanyID: companyID, DocType: docType}
	err := s.db.QueryRow(ctx, `
SELECT prefix, next_number
FROM number_sequences
WHERE company_id = $1 AND doc_type = $2
FOR UPDATE`, companyID, docType).Scan(&seq.Prefix, &seq.NextNumber)
	if err != nil {
		return Sequence{}, fmt.Errorf("numbering: lock sequence: %w", err)
	}
	return seq, nil
}

func (s *store) Save(ctx context.Context, seq Sequence) error {
	tag, err := s.db.Exec(ctx, `
UPDATE number_sequences
SET prefix = $3, next_number = $4
WHERE company_id = $1 AND doc_type = $2`, seq.CompanyID, seq.DocType, seq.Prefix, seq.NextNumber)
	if err != nil {
		return fmt.Errorf("numbering: save sequence: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("numbering: save sequence: %s not locked", seq.DocType)
	}
	return nil
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Sequence, error) {
	rows, err := r.pool.Query(ctx, `
SELECT doc_type, prefix, next_number
FROM number_sequences
WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, fmt.Errorf("numbering: list sequences: %w", err)
	}
	defer rows.Close()

	var out []Sequence
	for rows.Next() {
		seq := Sequence{CompanyID: companyID}
		if err := rows.Scan(&seq.DocType, &seq.Prefix, &seq.NextNumber); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}
