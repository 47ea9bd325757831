// Package loader applies an entity stream to a relational table in batches.
//
// A table load is all-or-nothing with respect to its checkpoint: rows are
// committed batch by batch, but the completion marker is written only after
// the final batch succeeds. A load that fails part way is restarted from the
// beginning on the next run.
package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/logging"
)

// Result summarizes one table load.
type Result struct {
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Batches  int           `json:"batches"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// LoadError reports a failed table load and how far it got.
// Batches before Batch are durable in the sink.
type LoadError struct {
	Table         string
	Batch         int   // 1-based failing batch, 0 when no batch was attempted
	RowsCommitted int64 // rows applied by earlier batches
	Err           error
}

func (e *LoadError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("load %s: batch %d failed after %d rows committed: %v",
			e.Table, e.Batch, e.RowsCommitted, e.Err)
	}
	return fmt.Sprintf("load %s: %v (%d rows committed)", e.Table, e.Err, e.RowsCommitted)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader applies one entity stream to one table.
type Loader struct {
	cfg         Config
	open        Opener
	checkpoints checkpoint.Store
	runID       string
}

// Option configures a Loader.
type Option func(*Loader)

// WithRunID tags written checkpoints with the pipeline run.
func WithRunID(id string) Option {
	return func(l *Loader) { l.runID = id }
}

// New validates cfg and returns a Loader.
func New(cfg Config, open Opener, checkpoints checkpoint.Store, opts ...Option) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if open == nil || checkpoints == nil {
		return nil, errors.New("loader: opener and checkpoint store are required")
	}

	l := &Loader{cfg: cfg, open: open, checkpoints: checkpoints}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the loader configuration.
func (l *Loader) Config() Config { return l.cfg }

// Load applies rows to the table.
//
// Without reload, an existing checkpoint short-circuits the load with zero
// sink writes. With reload, the checkpoint is discarded and the table is
// truncated before the first row is applied.
func (l *Loader) Load(ctx context.Context, rows iter.Seq2[[]string, error], reload bool) (Result, error) {
	start := time.Now()
	res := Result{Table: l.cfg.Table}
	key := checkpoint.LoadKey(l.cfg.Table)
	logger := logging.WithFields(ctx, "table", l.cfg.Table)

	if reload {
		stale, err := l.checkpoints.Exists(ctx, key)
		if err != nil {
			return res, &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("check checkpoint: %w", err)}
		}
		if stale {
			logger.Info("ignoring stale checkpoint for reload", "checkpoint", key)
			if err := l.checkpoints.Clear(ctx, key); err != nil {
				return res, &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("clear checkpoint: %w", err)}
			}
		}
	} else {
		done, err := l.checkpoints.Exists(ctx, key)
		if err != nil {
			return res, &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("check checkpoint: %w", err)}
		}
		if done {
			logger.Info("table already loaded, skipping", "checkpoint", key)
			res.Skipped = true
			return res, nil
		}
	}

	sink, err := l.open(ctx)
	if err != nil {
		return res, &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("%w: %v", ErrSinkUnavailable, err)}
	}
	// Release the sink before marking so a checkpoint store sharing the
	// same connection pool never waits on it.
	err = l.apply(ctx, sink, rows, reload, &res, logger)
	if cerr := sink.Close(); cerr != nil {
		logger.Warn("failed to release sink", "error", cerr)
	}
	if err != nil {
		return res, err
	}

	marker := checkpoint.Marker{
		Key:     key,
		RunID:   l.runID,
		Rows:    res.Rows,
		Batches: res.Batches,
	}
	if err := l.checkpoints.Mark(ctx, marker); err != nil {
		return res, &LoadError{Table: l.cfg.Table, RowsCommitted: res.Rows, Err: fmt.Errorf("write checkpoint: %w", err)}
	}

	res.Duration = time.Since(start)
	logger.Info("table loaded",
		"rows", res.Rows,
		"batches", res.Batches,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (l *Loader) apply(ctx context.Context, sink Sink, rows iter.Seq2[[]string, error], reload bool, res *Result, logger *slog.Logger) error {
	d := sink.Dialect()
	if err := l.cfg.checkParams(d); err != nil {
		return &LoadError{Table: l.cfg.Table, Err: err}
	}

	exists, err := sink.TableExists(ctx, l.cfg.Table)
	if err != nil {
		return &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("%w: %v", ErrSinkUnavailable, err)}
	}
	if !exists {
		return &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("%w: %s", ErrTableNotFound, l.cfg.Table)}
	}

	if reload {
		logger.Info("truncating table")
		if err := sink.Truncate(ctx, l.cfg.Table); err != nil {
			return &LoadError{Table: l.cfg.Table, Err: fmt.Errorf("%w: truncate: %v", ErrSinkWrite, err)}
		}
	}

	ncols := len(l.cfg.Columns)
	fullBatch := BuildInsert(d, l.cfg, l.cfg.BatchSize)
	args := make([]any, 0, l.cfg.BatchSize*ncols)
	pending := 0

	// A statement may not touch one conflict key twice (Postgres rejects it),
	// so a repeated key starts a new batch and the later row still wins.
	var keyCols []int
	var keys map[string]struct{}
	if l.cfg.Upsert {
		keyCols = l.cfg.conflictIndexes()
		keys = make(map[string]struct{}, l.cfg.BatchSize)
	}

	flush := func() error {
		query := fullBatch
		if pending != l.cfg.BatchSize {
			query = BuildInsert(d, l.cfg, pending)
		}
		batch := res.Batches + 1
		if _, err := sink.Exec(ctx, query, args...); err != nil {
			return &LoadError{
				Table:         l.cfg.Table,
				Batch:         batch,
				RowsCommitted: res.Rows,
				Err:           fmt.Errorf("%w: %v", ErrSinkWrite, err),
			}
		}
		logger.Debug("batch applied", "batch", batch, "rows", pending)
		res.Rows += int64(pending)
		res.Batches = batch
		args = args[:0]
		pending = 0
		clear(keys)
		return nil
	}

	for row, err := range rows {
		if err != nil {
			return &LoadError{Table: l.cfg.Table, RowsCommitted: res.Rows, Err: fmt.Errorf("read rows: %w", err)}
		}
		if len(row) != ncols {
			return &LoadError{
				Table:         l.cfg.Table,
				RowsCommitted: res.Rows,
				Err: fmt.Errorf("%w: row %d has %d fields, want %d",
					ErrRowArity, res.Rows+int64(pending)+1, len(row), ncols),
			}
		}

		if keys != nil {
			key := conflictKey(row, keyCols)
			if _, dup := keys[key]; dup {
				if err := flush(); err != nil {
					return err
				}
			}
			keys[key] = struct{}{}
		}

		for _, v := range row {
			args = append(args, nullable(v))
		}
		pending++

		if pending == l.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if pending > 0 {
		return flush()
	}
	return nil
}

func conflictKey(row []string, cols []int) string {
	if len(cols) == 1 {
		return row[cols[0]]
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = row[c]
	}
	return strings.Join(parts, "\x00")
}

// nullable binds an absent value as SQL NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
