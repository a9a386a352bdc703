// Package batch runs one input stream through a fresh engine and collects the
// final account table. The CLI and the HTTP surface both go through it.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/congo-pay/accountant/internal/account"
	"github.com/congo-pay/accountant/internal/engine"
	"github.com/congo-pay/accountant/internal/ingest"
	"github.com/congo-pay/accountant/internal/ledger"
)

// Options configures a Runner.
type Options struct {
	Backend  string
	Backends ledger.Backends
	Workers  int
	Logger   *slog.Logger
}

// Result is the outcome of one run.
type Result struct {
	RunID    uuid.UUID
	Summary  engine.Summary
	Accounts []account.Snapshot
}

// Runner executes independent runs. Every run gets its own registry and a
// ledger scoped to a new run id, so runs share no state.
type Runner struct {
	opts Options
}

// NewRunner returns a Runner with the given options.
func NewRunner(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{opts: opts}
}

// Run reads CSV transactions from in and applies them.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Result, error) {
	runID := uuid.New()
	logger := r.opts.Logger.With("run_id", runID.String())

	src, err := ingest.NewReader(in)
	if err != nil {
		return Result{RunID: runID}, err
	}

	l, err := ledger.Open(ctx, r.opts.Backend, r.opts.Backends, runID)
	if err != nil {
		return Result{RunID: runID}, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := l.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close ledger", "error", err)
		}
	}()

	e := engine.New(
		engine.NewProcessor(l, account.NewRegistry()),
		engine.WithWorkers(r.opts.Workers),
		engine.WithObserver(engine.NewLogObserver(logger)),
		engine.WithLogger(logger),
	)
	summary, err := e.Run(ctx, src)
	if err != nil {
		return Result{RunID: runID, Summary: summary}, err
	}

	return Result{RunID: runID, Summary: summary, Accounts: e.Snapshots()}, nil
}
