// Package database connects the pipeline to its relational sink.
//
// PostgreSQL is reached through a pgx connection pool; MySQL and SQLite go
// through database/sql. Both paths hand the loader one dedicated connection
// per table load and expose the same schema migrations and checkpoint table.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/config"
	"github.com/JonMunkholm/dohpipeline/internal/loader"
)

// DB holds the connection handles for the configured driver.
// Pool is set for PostgreSQL, SQL for MySQL and SQLite.
type DB struct {
	Dialect loader.Dialect
	Pool    *pgxpool.Pool
	SQL     *sql.DB

	url string
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dialect, err := loader.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	if dialect == loader.Postgres {
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &DB{Dialect: dialect, Pool: pool, url: cfg.URL}, nil
	}

	db, err := OpenSQL(ctx, dialect, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	return &DB{Dialect: dialect, SQL: db, url: cfg.URL}, nil
}

// NewPool creates a pgx pool from cfg and pings it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database", "driver", "postgres", "name", poolConfig.ConnConfig.Database)
	return pool, nil
}

// OpenSQL opens a database/sql handle for MySQL or SQLite and pings it.
func OpenSQL(ctx context.Context, dialect loader.Dialect, rawURL string, maxConns int) (*sql.DB, error) {
	var driver, dsn string
	switch dialect {
	case loader.MySQL:
		d, err := mysqlDSN(rawURL)
		if err != nil {
			return nil, err
		}
		driver, dsn = "mysql", d
	case loader.SQLite:
		driver, dsn = "sqlite", sqliteDSN(rawURL)
	default:
		return nil, fmt.Errorf("use NewPool for %s", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == loader.SQLite {
		// A single writer avoids SQLITE_BUSY between concurrent loads.
		db.SetMaxOpenConns(1)
	} else if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	slog.Info("connected to database", "driver", driver)
	return db, nil
}

// mysqlDSN accepts either a driver DSN (user:pass@tcp(host:3306)/db) or a
// mysql:// URL and returns a driver DSN.
func mysqlDSN(raw string) (string, error) {
	var cfg *mysql.Config
	if strings.HasPrefix(raw, "mysql://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse mysql URL: %w", err)
		}
		cfg = mysql.NewConfig()
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = u.Host + ":3306"
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
	} else {
		parsed, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("parse mysql DSN: %w", err)
		}
		cfg = parsed
	}

	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// sqliteDSN strips a sqlite:// scheme and adds busy timeout and WAL pragmas.
func sqliteDSN(raw string) string {
	dsn := strings.TrimPrefix(raw, "sqlite://")
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Opener returns a loader.Opener that hands out one dedicated connection per load.
func (db *DB) Opener() loader.Opener {
	if db.Pool != nil {
		return PgOpener(db.Pool)
	}
	return SQLOpener(db.SQL, db.Dialect)
}

// Checkpoints returns a checkpoint store backed by the load_checkpoints table.
func (db *DB) Checkpoints() checkpoint.Store {
	if db.Pool != nil {
		return NewPgCheckpointStore(db.Pool)
	}
	return NewSQLCheckpointStore(db.SQL, db.Dialect)
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	return db.SQL.PingContext(ctx)
}

// Migrate applies pending schema migrations over a dedicated handle.
func (db *DB) Migrate(ctx context.Context) error {
	if db.Pool != nil {
		return RunMigrations(stdlib.OpenDBFromPool(db.Pool), db.Dialect)
	}
	mdb, err := OpenSQL(ctx, db.Dialect, db.url, 1)
	if err != nil {
		return err
	}
	return RunMigrations(mdb, db.Dialect)
}

// Close releases every handle.
func (db *DB) Close() error {
	var errs []error
	if db.SQL != nil {
		errs = append(errs, db.SQL.Close())
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	return errors.Join(errs...)
}
