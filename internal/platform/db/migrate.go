package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7462839

// ErrMigrationLocked is returned when another migrator holds the advisory lock.
var ErrMigrationLocked = errors.New("platform/db: another migrator is running")

// Migration is one embedded schema file.
type Migration struct {
	Version  string
	Filename string
	SQL      string
	Checksum string
}

// Migrations returns the embedded migrations ordered by filename.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("platform/db: read migrations: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("platform/db: invalid migration filename %q", name)
		}
		if seen[version] {
			return nil, fmt.Errorf("platform/db: duplicate migration version %s", version)
		}
		seen[version] = true

		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  version,
			Filename: name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction. Applied
// files whose checksum changed are reported as errors.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("platform/db: acquire: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
		return 0, fmt.Errorf("platform/db: advisory lock: %w", err)
	}
	if !locked {
		return 0, ErrMigrationLocked
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return 0, fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var existing string
		err := conn.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", m.Version).Scan(&existing)
		switch {
		case err == nil:
			if existing != m.Checksum {
				return applied, fmt.Errorf("platform/db: checksum mismatch for %s", m.Filename)
			}
			logger.Debug("migration skipped", slog.String("file", m.Filename))
			continue
		case !errors.Is(err, pgx.ErrNoRows):
			return applied, fmt.Errorf("platform/db: lookup %s: %w", m.Filename, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return applied, fmt.Errorf("platform/db: begin %s: %w", m.Filename, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("platform/db: apply %s: %w", m.Filename, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
			m.Version, m.Filename, m.Checksum); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("platform/db: record %s: %w", m.Filename, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, fmt.Errorf("platform/db: commit %s: %w", m.Filename, err)
		}
		applied++
		logger.Info("migration applied", slog.String("file", m.Filename))
	}
	return applied, nil
}
