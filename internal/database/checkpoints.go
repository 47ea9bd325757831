package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/loader"
)

// PgCheckpointStore keeps completion markers in the load_checkpoints table.
type PgCheckpointStore struct {
	pool *pgxpool.Pool
}

// NewPgCheckpointStore returns a store over pool.
func NewPgCheckpointStore(pool *pgxpool.Pool) *PgCheckpointStore {
	return &PgCheckpointStore{pool: pool}
}

func (s *PgCheckpointStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM load_checkpoints WHERE checkpoint_key = $1)`, key,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check checkpoint %s: %w", key, err)
	}
	return ok, nil
}

func (s *PgCheckpointStore) Get(ctx context.Context, key string) (checkpoint.Marker, error) {
	var m checkpoint.Marker
	err := s.pool.QueryRow(ctx,
		`SELECT checkpoint_key, run_id, row_count, batches, completed_at
		 FROM load_checkpoints WHERE checkpoint_key = $1`, key,
	).Scan(&m.Key, &m.RunID, &m.Rows, &m.Batches, &m.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkpoint.Marker{}, fmt.Errorf("%s: %w", key, checkpoint.ErrNotFound)
	}
	if err != nil {
		return checkpoint.Marker{}, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return m, nil
}

func (s *PgCheckpointStore) Mark(ctx context.Context, m checkpoint.Marker) error {
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO load_checkpoints (checkpoint_key, run_id, row_count, batches, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (checkpoint_key) DO UPDATE SET
		   run_id = EXCLUDED.run_id,
		   row_count = EXCLUDED.row_count,
		   batches = EXCLUDED.batches,
		   completed_at = EXCLUDED.completed_at`,
		m.Key, m.RunID, m.Rows, m.Batches, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("mark checkpoint %s: %w", m.Key, err)
	}
	return nil
}

func (s *PgCheckpointStore) Clear(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM load_checkpoints WHERE checkpoint_key = $1`, key); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *PgCheckpointStore) List(ctx context.Context) ([]checkpoint.Marker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT checkpoint_key, run_id, row_count, batches, completed_at
		 FROM load_checkpoints ORDER BY checkpoint_key`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.Marker
	for rows.Next() {
		var m checkpoint.Marker
		if err := rows.Scan(&m.Key, &m.RunID, &m.Rows, &m.Batches, &m.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SQLCheckpointStore keeps completion markers in load_checkpoints through
// database/sql. completed_at is stored as RFC 3339 text so MySQL and SQLite
// scan it the same way.
type SQLCheckpointStore struct {
	db      *sql.DB
	dialect loader.Dialect
}

// NewSQLCheckpointStore returns a store over db.
func NewSQLCheckpointStore(db *sql.DB, dialect loader.Dialect) *SQLCheckpointStore {
	return &SQLCheckpointStore{db: db, dialect: dialect}
}

func (s *SQLCheckpointStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM load_checkpoints WHERE checkpoint_key = ?`, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check checkpoint %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLCheckpointStore) Get(ctx context.Context, key string) (checkpoint.Marker, error) {
	var (
		m    checkpoint.Marker
		done string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_key, run_id, row_count, batches, completed_at
		 FROM load_checkpoints WHERE checkpoint_key = ?`, key,
	).Scan(&m.Key, &m.RunID, &m.Rows, &m.Batches, &done)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Marker{}, fmt.Errorf("%s: %w", key, checkpoint.ErrNotFound)
	}
	if err != nil {
		return checkpoint.Marker{}, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	if m.CompletedAt, err = time.Parse(time.RFC3339Nano, done); err != nil {
		return checkpoint.Marker{}, fmt.Errorf("parse checkpoint %s time: %w", key, err)
	}
	return m, nil
}

func (s *SQLCheckpointStore) Mark(ctx context.Context, m checkpoint.Marker) error {
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}

	query := `INSERT INTO load_checkpoints (checkpoint_key, run_id, row_count, batches, completed_at)
		VALUES (?, ?, ?, ?, ?)`
	if s.dialect == loader.MySQL {
		query += ` ON DUPLICATE KEY UPDATE run_id = VALUES(run_id), row_count = VALUES(row_count),
			batches = VALUES(batches), completed_at = VALUES(completed_at)`
	} else {
		query += ` ON CONFLICT (checkpoint_key) DO UPDATE SET run_id = excluded.run_id,
			row_count = excluded.row_count, batches = excluded.batches, completed_at = excluded.completed_at`
	}

	_, err := s.db.ExecContext(ctx, query,
		m.Key, m.RunID, m.Rows, m.Batches, m.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark checkpoint %s: %w", m.Key, err)
	}
	return nil
}

func (s *SQLCheckpointStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM load_checkpoints WHERE checkpoint_key = ?`, key); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *SQLCheckpointStore) List(ctx context.Context) ([]checkpoint.Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_key, run_id, row_count, batches, completed_at
		 FROM load_checkpoints ORDER BY checkpoint_key`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.Marker
	for rows.Next() {
		var (
			m    checkpoint.Marker
			done string
		)
		if err := rows.Scan(&m.Key, &m.RunID, &m.Rows, &m.Batches, &done); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if m.CompletedAt, err = time.Parse(time.RFC3339Nano, done); err != nil {
			return nil, fmt.Errorf("parse checkpoint %s time: %w", m.Key, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
