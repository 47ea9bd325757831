// Command dohpipeline downloads the DOH restaurant inspection results,
// normalizes them into restaurant, inspection and violation streams and
// loads those into a relational database.
//
// Usage:
//
//	dohpipeline [-config path] run [-reload]
//	dohpipeline [-config path] migrate
//	dohpipeline [-config path] status
//	dohpipeline [-config path] serve
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/config"
	"github.com/JonMunkholm/dohpipeline/internal/database"
	"github.com/JonMunkholm/dohpipeline/internal/logging"
	"github.com/JonMunkholm/dohpipeline/internal/pipeline"
	"github.com/JonMunkholm/dohpipeline/internal/source"
	"github.com/JonMunkholm/dohpipeline/internal/web"
)

const usage = `usage: dohpipeline [-config path] <command> [flags]

commands:
  run [-reload]   fetch, normalize and load; -reload rebuilds every stage
  migrate         apply database migrations
  status          list completed stage checkpoints
  serve           start the operations API
`

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dohpipeline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", config.DefaultPath, "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "run", "migrate", "status", "serve":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	app, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		fmt.Fprintln(stderr, pipeline.FormatUserError(err))
		return 1
	}
	defer app.close()

	switch cmd {
	case "run":
		return app.runOnce(ctx, rest, stdout, stderr)
	case "migrate":
		return app.migrate(ctx, stdout, stderr)
	case "status":
		return app.status(ctx, stdout, stderr)
	default:
		return app.serve(ctx, stderr)
	}
}

// app holds the wired collaborators shared by every command.
type app struct {
	cfg         *config.Config
	db          *database.DB
	checkpoints checkpoint.Store
	coordinator *pipeline.Coordinator
	runner      *pipeline.Runner
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", "driver", db.Dialect.String())

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	store, err := checkpointStore(cfg.Pipeline, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	coordinator, err := pipeline.New(pipeline.Deps{
		Pipeline:    cfg.Pipeline,
		Encoding:    cfg.Source.Encoding,
		Fetcher:     fetcher(cfg.Source),
		Opener:      db.Opener(),
		Checkpoints: store,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		db:          db,
		checkpoints: store,
		coordinator: coordinator,
		runner:      pipeline.NewRunner(ctx, coordinator),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}

func checkpointStore(cfg config.PipelineConfig, db *database.DB) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "database":
		return db.Checkpoints(), nil
	case "file", "":
		return checkpoint.NewFileStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}

func fetcher(cfg config.SourceConfig) source.Fetcher {
	if cfg.Path != "" {
		return &source.FileFetcher{Path: cfg.Path}
	}
	return source.NewHTTPFetcher(cfg.URL, cfg.FetchTimeout)
}

func (a *app) runOnce(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reload := fs.Bool("reload", false, "discard checkpoints and rebuild every stage")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	report, err := a.runner.RunSync(ctx, *reload)
	if report != nil {
		printReport(stdout, report)
	}
	if err != nil {
		slog.Error("pipeline run failed", "error", err)
		printFailure(stderr, err)
		return 1
	}
	return 0
}

// printFailure names each failed table with the rows its earlier batches
// committed, falling back to the mapped message for other stages.
func printFailure(w io.Writer, err error) {
	failures := pipeline.LoadFailures(err)
	if len(failures) == 0 {
		fmt.Fprintln(w, pipeline.FormatUserError(err))
		return
	}
	for _, se := range failures {
		fmt.Fprintf(w, "load %s failed after %d rows committed: %s\n",
			se.Table, se.RowsCommitted, pipeline.FormatUserError(se.Err))
	}
}

func printReport(w io.Writer, report *pipeline.Report) {
	fmt.Fprintf(w, "run %s (reload=%t)\n", report.RunID, report.Reload)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSKIPPED\tROWS\tDURATION")
	for _, s := range report.Stages {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", s.Stage, s.Skipped, s.Rows, s.Duration.Round(time.Millisecond))
	}
	for _, t := range report.Tables {
		fmt.Fprintf(tw, "load %s\t%t\t%d\t%s\n", t.Table, t.Skipped, t.Rows, t.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}

func (a *app) migrate(ctx context.Context, stdout, stderr io.Writer) int {
	if err := a.db.Migrate(ctx); err != nil {
		fmt.Fprintln(stderr, pipeline.FormatUserError(err))
		return 1
	}
	fmt.Fprintln(stdout, "migrations applied")
	return 0
}

func (a *app) status(ctx context.Context, stdout, stderr io.Writer) int {
	markers, err := a.checkpoints.List(ctx)
	if err != nil {
		fmt.Fprintln(stderr, pipeline.FormatUserError(err))
		return 1
	}
	if len(markers) == 0 {
		fmt.Fprintln(stdout, "no checkpoints")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tRUN\tROWS\tCOMPLETED")
	for _, m := range markers {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Key, m.RunID, m.Rows, m.CompletedAt.Format(time.RFC3339))
	}
	tw.Flush()
	return 0
}

func (a *app) serve(ctx context.Context, stderr io.Writer) int {
	server := web.NewServer(*a.cfg, a.runner, a.coordinator, a.db)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Runs share the signal context, so they are already cancelling.
	if n := a.runner.Active(); n > 0 {
		slog.Info("waiting for pipeline runs to stop", "active", n)
		if err := a.runner.Wait(shutdownCtx); err != nil {
			slog.Warn("runs did not stop in time", "error", err)
		}
	}
	return 0
}
