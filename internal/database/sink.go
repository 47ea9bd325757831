package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/dohpipeline/internal/loader"
)

const pgTableExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`

// PgOpener acquires a pooled connection for each table load.
func PgOpener(pool *pgxpool.Pool) loader.Opener {
	return func(ctx context.Context) (loader.Sink, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		return &pgSink{conn: conn}, nil
	}
}

type pgSink struct {
	conn *pgxpool.Conn
}

func (s *pgSink) Dialect() loader.Dialect { return loader.Postgres }

func (s *pgSink) TableExists(ctx context.Context, table string) (bool, error) {
	var ok bool
	if err := s.conn.QueryRow(ctx, pgTableExistsSQL, table).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *pgSink) Truncate(ctx context.Context, table string) error {
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, loader.Postgres.TruncateSQL(table))
		return err
	})
}

func (s *pgSink) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgSink) Close() error {
	s.conn.Release()
	return nil
}

// SQLOpener acquires a database/sql connection for each table load.
func SQLOpener(db *sql.DB, dialect loader.Dialect) loader.Opener {
	return func(ctx context.Context) (loader.Sink, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		return &sqlSink{conn: conn, dialect: dialect}, nil
	}
}

type sqlSink struct {
	conn    *sql.Conn
	dialect loader.Dialect
}

func (s *sqlSink) Dialect() loader.Dialect { return s.dialect }

func (s *sqlSink) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.dialect {
	case loader.MySQL:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case loader.SQLite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}

	var n int
	if err := s.conn.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlSink) Truncate(ctx context.Context, table string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.TruncateSQL(table)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *sqlSink) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlSink) Close() error {
	return s.conn.Close()
}
