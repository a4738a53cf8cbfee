package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/db"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Profile(ctx context.Context, userID int64) (Profile, error)
	CreateCompanyWithUser(ctx context.Context, companyName string, user *User) (Company, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, company_id, email, full_name, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.CompanyID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// Profile loads a user and their company.
func (r *PGRepository) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return Profile{}, err
	}
	var c Company
	if err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM companies WHERE id = $1`, user.CompanyID).
		Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return Profile{User: *user, Company: c}, nil
}

// CreateCompanyWithUser inserts the company and user in one transaction.
func (r *PGRepository) CreateCompanyWithUser(ctx context.Context, companyName string, user *User) (Company, error) {
	var company Company
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO companies (name) VALUES ($1) RETURNING id, name, created_at`, companyName).
			Scan(&company.ID, &company.Name, &company.CreatedAt); err != nil {
			return err
		}
		user.CompanyID = company.ID
		err := tx.QueryRow(ctx, `
INSERT INTO users (company_id, email, full_name, password_hash, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id, is_active, created_at, updated_at`,
			user.CompanyID, user.Email, user.FullName, user.PasswordHash).
			Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	})
	return company, err
}

// CreateSession records a login session for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, ua)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
