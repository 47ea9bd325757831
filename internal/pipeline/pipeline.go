// Package pipeline runs the fixed fetch, normalize and load stages.
//
// Every stage is guarded by a checkpoint. A normal run skips any stage whose
// checkpoint is present; a reload discards the checkpoints, regenerates the
// intermediate files and truncates every table before loading it again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/config"
	"github.com/JonMunkholm/dohpipeline/internal/loader"
	"github.com/JonMunkholm/dohpipeline/internal/logging"
	"github.com/JonMunkholm/dohpipeline/internal/normalize"
	"github.com/JonMunkholm/dohpipeline/internal/record"
	"github.com/JonMunkholm/dohpipeline/internal/source"
	"github.com/JonMunkholm/dohpipeline/internal/tsv"
)

// Stage names, also used as checkpoint keys for fetch and normalize.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageLoad      = "load"
)

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Pipeline    config.PipelineConfig
	Encoding    string // Source file encoding, see source.Decoder
	Fetcher     source.Fetcher
	Opener      loader.Opener
	Checkpoints checkpoint.Store
}

// StageReport summarizes one fetch or normalize stage.
type StageReport struct {
	Stage    string        `json:"stage"`
	Skipped  bool          `json:"skipped"`
	Rows     int64         `json:"rows"` // bytes for fetch, records for normalize
	Duration time.Duration `json:"duration_ns"`
}

// Report summarizes a run. Tables holds one entry per table load that
// finished, successfully or skipped.
type Report struct {
	RunID     string           `json:"run_id"`
	Reload    bool             `json:"reload"`
	StartedAt time.Time        `json:"started_at"`
	Stages    []StageReport    `json:"stages"`
	Tables    []loader.Result  `json:"tables"`
	Stats     *normalize.Stats `json:"stats,omitempty"`
}

// Coordinator runs the pipeline stages in order.
type Coordinator struct {
	deps   Deps
	check  normalize.OrderCheck
	tables []loader.Config
}

// New validates deps and returns a Coordinator.
func New(deps Deps) (*Coordinator, error) {
	if deps.Fetcher == nil || deps.Opener == nil || deps.Checkpoints == nil {
		return nil, errors.New("pipeline: fetcher, opener and checkpoint store are required")
	}
	if deps.Pipeline.DataDir == "" {
		return nil, errors.New("pipeline: data dir is required")
	}
	if deps.Pipeline.LoadParallelism <= 0 {
		return nil, fmt.Errorf("pipeline: load parallelism must be positive, got %d", deps.Pipeline.LoadParallelism)
	}
	if _, err := source.Decoder(deps.Encoding); err != nil {
		return nil, err
	}

	check, err := normalize.ParseOrderCheck(deps.Pipeline.OrderCheck)
	if err != nil {
		return nil, err
	}

	tables := Tables(deps.Pipeline)
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	return &Coordinator{deps: deps, check: check, tables: tables}, nil
}

// Tables returns the loader configuration of every destination table.
func (c *Coordinator) Tables() []loader.Config { return c.tables }

// Checkpoints returns the store guarding the stages.
func (c *Coordinator) Checkpoints() checkpoint.Store { return c.deps.Checkpoints }

func (c *Coordinator) path(name string) string {
	return filepath.Join(c.deps.Pipeline.DataDir, name)
}

// Run executes fetch, normalize and the table loads. reload applies to every
// stage. Fetch or normalize failures abort the run; a failing table load
// does not stop its siblings, and all load failures are returned joined.
func (c *Coordinator) Run(ctx context.Context, reload bool) (*Report, error) {
	if c.deps.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.Pipeline.Timeout)
		defer cancel()
	}

	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	logger := logging.FromContext(ctx)

	report := &Report{RunID: runID, Reload: reload, StartedAt: time.Now().UTC()}
	logger.Info("pipeline run started", "reload", reload)

	if reload {
		if err := c.discard(ctx); err != nil {
			return report, err
		}
	}

	stage, err := c.fetch(ctx, reload)
	report.Stages = append(report.Stages, stage)
	if err != nil {
		return report, &StageError{Stage: StageFetch, Err: err}
	}

	stage, stats, err := c.normalize(ctx, reload)
	report.Stages = append(report.Stages, stage)
	report.Stats = stats
	if err != nil {
		return report, &StageError{Stage: StageNormalize, Err: err}
	}

	report.Tables, err = c.load(ctx, runID, reload)

	logger.Info("pipeline run finished",
		"tables", len(report.Tables),
		"failed", err != nil,
		"duration_ms", time.Since(report.StartedAt).Milliseconds(),
	)
	return report, err
}

// discard clears the fetch and normalize checkpoints and removes their
// outputs. Load checkpoints are cleared by each Loader.
func (c *Coordinator) discard(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	for _, key := range []string{StageFetch, StageNormalize} {
		if err := c.deps.Checkpoints.Clear(ctx, key); err != nil {
			return fmt.Errorf("clear checkpoint %s: %w", key, err)
		}
	}

	stale := []string{source.FileName}
	for _, t := range c.tables {
		stale = append(stale, streamFile(t.Table))
	}
	for _, name := range stale {
		err := os.Remove(c.path(name))
		if err == nil {
			logger.Info("removed stale output", "file", name)
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	return nil
}

// done reports whether key is checkpointed and every file in names exists.
func (c *Coordinator) done(ctx context.Context, key string, names ...string) (bool, error) {
	ok, err := c.deps.Checkpoints.Exists(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	for _, name := range names {
		if _, err := os.Stat(c.path(name)); err != nil {
			return false, nil
		}
	}
	return true, nil
}

func (c *Coordinator) fetch(ctx context.Context, reload bool) (StageReport, error) {
	start := time.Now()
	rep := StageReport{Stage: StageFetch}

	if !reload {
		ok, err := c.done(ctx, StageFetch, source.FileName)
		if err != nil {
			return rep, err
		}
		if ok {
			logging.FromContext(ctx).Info("source already fetched, skipping")
			rep.Skipped = true
			return rep, nil
		}
	}

	n, err := c.deps.Fetcher.Fetch(ctx, c.path(source.FileName))
	if err != nil {
		return rep, err
	}
	if err := c.deps.Checkpoints.Mark(ctx, checkpoint.Marker{Key: StageFetch, RunID: logging.RunID(ctx)}); err != nil {
		return rep, fmt.Errorf("write checkpoint: %w", err)
	}

	rep.Rows = n
	rep.Duration = time.Since(start)
	return rep, nil
}

func (c *Coordinator) normalize(ctx context.Context, reload bool) (StageReport, *normalize.Stats, error) {
	start := time.Now()
	rep := StageReport{Stage: StageNormalize}
	logger := logging.FromContext(ctx)

	outputs := make([]string, len(c.tables))
	for i, t := range c.tables {
		outputs[i] = streamFile(t.Table)
	}

	if !reload {
		ok, err := c.done(ctx, StageNormalize, outputs...)
		if err != nil {
			return rep, nil, err
		}
		if ok {
			logger.Info("entity streams already written, skipping")
			rep.Skipped = true
			return rep, nil, nil
		}
	}

	src, err := source.Open(c.path(source.FileName), c.deps.Encoding)
	if err != nil {
		return rep, nil, err
	}
	defer src.Close()

	out, err := createStreams(c.deps.Pipeline.DataDir, outputs)
	if err != nil {
		return rep, nil, err
	}

	emissions, stats := normalize.Normalize(
		record.NewReader(src).All(),
		normalize.WithOrderCheck(c.check),
	)
	err = normalize.WriteStreams(ctx, emissions, normalize.Writers{
		Restaurant: out.writers[0],
		Inspection: out.writers[1],
		Violation:  out.writers[2],
	})
	if err != nil {
		out.abort()
		return rep, stats, err
	}
	if err := out.commit(); err != nil {
		out.abort()
		return rep, stats, err
	}

	logger.Info(fmt.Sprintf("Processed %d records", stats.Scanned), "stats", *stats)

	marker := checkpoint.Marker{Key: StageNormalize, RunID: logging.RunID(ctx), Rows: stats.Scanned}
	if err := c.deps.Checkpoints.Mark(ctx, marker); err != nil {
		return rep, stats, fmt.Errorf("write checkpoint: %w", err)
	}

	rep.Rows = stats.Scanned
	rep.Duration = time.Since(start)
	return rep, stats, nil
}

func (c *Coordinator) load(ctx context.Context, runID string, reload bool) ([]loader.Result, error) {
	// Each goroutine writes only its own index.
	results := make([]*loader.Result, len(c.tables))
	errs := make([]error, len(c.tables))

	// Plain Group: one table failing must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(c.deps.Pipeline.LoadParallelism)

	for i, cfg := range c.tables {
		g.Go(func() error {
			l, err := loader.New(cfg, c.deps.Opener, c.deps.Checkpoints, loader.WithRunID(runID))
			if err == nil {
				var res loader.Result
				res, err = l.Load(ctx, tsvRows(c.path(streamFile(cfg.Table))), reload)
				if err == nil {
					results[i] = &res
					return nil
				}
			}

			se := &StageError{Stage: StageLoad, Table: cfg.Table, Err: err}
			var le *loader.LoadError
			if errors.As(err, &le) {
				se.RowsCommitted = le.RowsCommitted
			}
			logging.WithFields(ctx, "table", cfg.Table).Error("table load failed",
				"error", err, "rows_committed", se.RowsCommitted)

			errs[i] = se
			return nil
		})
	}
	g.Wait()

	var out []loader.Result
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, errors.Join(errs...)
}

// tsvRows opens path lazily, so a skipped load never touches the file.
func tsvRows(path string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()

		for row, err := range tsv.NewReader(f).All() {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}
