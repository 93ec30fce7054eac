// Package postgres implements the job store using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/simplesurance/trymerger/internal/store"
)

const uniqueViolationCode = "23505"

// Store is a PostgreSQL-backed job store.
type Store struct {
	db *sqlx.DB
}

// Connect opens a connection pool to the database and verifies it is reachable.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database failed: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// New returns a store that uses db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL UNIQUE,
		owner TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT 'main',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS try_merge_jobs (
		id UUID PRIMARY KEY,
		repository_id BIGINT NOT NULL,
		pr_number INTEGER NOT NULL,
		branch_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		error_message TEXT,
		CONSTRAINT fk_repository FOREIGN KEY (repository_id) REFERENCES repositories(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_try_merge_jobs_repo_pr ON try_merge_jobs(repository_id, pr_number)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration %d failed: %w", i, err)
		}
	}

	return nil
}

// UpsertRepository stores repo.
// A record of another repository with the same full name is outdated, the
// repository was renamed or deleted. Its full name is released.
func (s *Store) UpsertRepository(ctx context.Context, repo *store.Repository) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert repository %s: starting transaction failed: %w", repo.FullName, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`UPDATE repositories
		 SET full_name = full_name || '#' || id::TEXT,
		     updated_at = NOW()
		 WHERE full_name = $1 AND id <> $2`,
		repo.FullName, repo.ID,
	)
	if err != nil {
		return fmt.Errorf("upsert repository %s: releasing full name failed: %w", repo.FullName, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO repositories (id, name, full_name, owner, default_branch)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id)
		 DO UPDATE SET name = EXCLUDED.name,
		               full_name = EXCLUDED.full_name,
		               owner = EXCLUDED.owner,
		               default_branch = EXCLUDED.default_branch,
		               updated_at = NOW()`,
		repo.ID, repo.Name, repo.FullName, repo.Owner, repo.DefaultBranch,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upsert repository %s: %w", repo.FullName, store.ErrAlreadyExists)
		}

		return fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("upsert repository %s: commit failed: %w", repo.FullName, err)
	}

	return nil
}

func (s *Store) CreateJob(ctx context.Context, job *store.TryMergeJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO try_merge_jobs
		 (id, repository_id, pr_number, branch_name, status, created_at, updated_at, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.RepositoryID, job.PRNumber, job.BranchName,
		job.Status, job.CreatedAt, job.UpdatedAt, job.ErrorMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create job %s: %w", job.ID, store.ErrAlreadyExists)
		}

		return fmt.Errorf("create job %s: %w", job.ID, err)
	}

	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *store.TryMergeJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE try_merge_jobs
		 SET status = $2, updated_at = $3, error_message = $4
		 WHERE id = $1 AND status IN ('pending', 'running')`,
		job.ID, job.Status, job.UpdatedAt, job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}

	cnt, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: retrieving affected rows failed: %w", job.ID, err)
	}

	if cnt == 0 {
		return fmt.Errorf("active job %s: %w", job.ID, store.ErrNotFound)
	}

	return nil
}

const jobColumns = `id, repository_id, pr_number, branch_name, status, created_at, updated_at, error_message`

func (s *Store) ActiveJobs(ctx context.Context) ([]*store.TryMergeJob, error) {
	var jobs []*store.TryMergeJob

	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM try_merge_jobs
		 WHERE status IN ('pending', 'running')
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}

	return jobs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
