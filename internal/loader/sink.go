package loader

import (
	"context"
	"errors"
)

var (
	// ErrSinkUnavailable means the sink could not be opened.
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrSinkWrite means a truncate or batch statement failed.
	ErrSinkWrite = errors.New("sink write failed")
	// ErrTableNotFound means the destination table does not exist.
	ErrTableNotFound = errors.New("table not found")
	// ErrRowArity means a stream row does not match the configured columns.
	ErrRowArity = errors.New("row arity mismatch")
)

// Sink is the relational store a Loader writes to. Each Exec is one
// durable statement; Truncate runs as its own transaction.
type Sink interface {
	Dialect() Dialect
	TableExists(ctx context.Context, table string) (bool, error)
	Truncate(ctx context.Context, table string) error
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Close() error
}

// Opener acquires a sink for the duration of one table load.
// The Loader closes it on every exit path.
type Opener func(ctx context.Context) (Sink, error)
