package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dohpipeline/internal/logging"
)

// RunStatus is the lifecycle state of a tracked run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is a snapshot of one tracked pipeline run.
type Run struct {
	ID         string       `json:"id"`
	Reload     bool         `json:"reload"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Report     *Report      `json:"report,omitempty"`
	Error      string       `json:"error,omitempty"`
	Failure    *UserMessage `json:"failure,omitempty"`
}

// Executor runs the pipeline once. *Coordinator implements it.
type Executor interface {
	Run(ctx context.Context, reload bool) (*Report, error)
}

// Runner executes pipeline runs one at a time and remembers their outcome.
type Runner struct {
	exec    Executor
	limiter *RunLimiter
	base    context.Context

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunner returns a Runner. Background runs inherit base, so cancelling it
// stops them.
func NewRunner(base context.Context, exec Executor) *Runner {
	return &Runner{
		exec:    exec,
		limiter: NewRunLimiter(1, DefaultMaxWaitTime),
		base:    base,
		runs:    make(map[string]*Run),
	}
}

// RunSync waits for the run slot and executes a run in the caller's goroutine.
func (r *Runner) RunSync(ctx context.Context, reload bool) (*Report, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer r.limiter.Release()

	run := r.track(reload)
	report, err := r.exec.Run(logging.WithRunID(ctx, run.ID), reload)
	r.finish(run.ID, report, err)
	return report, err
}

// Start begins a run in the background. It fails with ErrRunInProgress
// instead of waiting when another run holds the slot.
func (r *Runner) Start(reload bool) (Run, error) {
	if !r.limiter.TryAcquire() {
		return Run{}, ErrRunInProgress
	}

	run := r.track(reload)
	ctx := logging.WithRunID(r.base, run.ID)

	go func() {
		defer r.limiter.Release()
		report, err := r.exec.Run(ctx, reload)
		r.finish(run.ID, report, err)
		if err != nil {
			logging.FromContext(ctx).Error("pipeline run failed", "error", err)
		}
	}()

	return run, nil
}

func (r *Runner) track(reload bool) Run {
	run := &Run{
		ID:        uuid.NewString(),
		Reload:    reload,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	return *run
}

func (r *Runner) finish(id string, report *Report, err error) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.runs[id]
	run.FinishedAt = &now
	run.Report = report
	run.Status = StatusSucceeded
	if err != nil {
		msg := MapError(err)
		run.Status = StatusFailed
		run.Error = err.Error()
		run.Failure = &msg
	}
}

// Get returns a snapshot of the run with the given id.
func (r *Runner) Get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Active reports how many runs are executing.
func (r *Runner) Active() int { return r.limiter.ActiveCount() }

// Slots reports the run limiter's capacity and use.
func (r *Runner) Slots() LimiterStatus { return r.limiter.Status() }

// Wait blocks until background runs finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	if err := r.limiter.WaitForDrain(ctx); err != nil {
		return errors.Join(errors.New("runs still active at shutdown"), err)
	}
	return nil
}
