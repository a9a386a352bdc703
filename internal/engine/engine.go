package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/accountant/internal/account"
	"github.com/congo-pay/accountant/internal/ledger"
	"github.com/congo-pay/accountant/internal/transaction"
)

const shardBuffer = 256

// job is a record on its way to a shard. claimErr is set when an earlier
// funding record already owns the tx id.
type job struct {
	rec      transaction.Record
	claimErr error
}

// claims assigns each funding tx id to the first valid deposit or withdrawal
// that carries it, in input order. Later funding records with the id are
// duplicates even when the owner itself ends up rejected.
type claims map[uint32]struct{}

func (c claims) claim(rec transaction.Record) error {
	if !rec.Kind.Funding() || rec.Validate() != nil {
		return nil
	}
	if _, taken := c[rec.TxID]; taken {
		return fmt.Errorf("%w: tx %d", ledger.ErrDuplicateTransaction, rec.TxID)
	}
	c[rec.TxID] = struct{}{}
	return nil
}

// Source yields records in input order. Next returns io.EOF after the last
// record. Errors wrapping transaction.ErrMalformedRecord are counted and
// skipped; any other error aborts the run.
type Source interface {
	Next() (transaction.Record, error)
}

// Engine drives a Source through a Processor.
type Engine struct {
	processor *Processor
	observer  Observer
	logger    *slog.Logger
	workers   int
}

// Option customises an Engine.
type Option func(*Engine)

// WithWorkers sets the number of shards. Records are routed by client id so
// each client's records keep their input order. Funding tx ids are claimed on
// the reading goroutine, so results match a single-worker run.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithObserver registers an observer for every outcome.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the logger used for malformed input and the run summary.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an engine around p. Without options it runs a single worker.
func New(p *Processor, opts ...Option) *Engine {
	e := &Engine{
		processor: p,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:   1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshots returns the final state of every account, sorted by client id.
func (e *Engine) Snapshots() []account.Snapshot {
	return e.processor.Accounts().Snapshots()
}

// Run consumes src until io.EOF and applies every record.
func (e *Engine) Run(ctx context.Context, src Source) (Summary, error) {
	start := time.Now()

	var (
		summary Summary
		err     error
	)
	if e.workers <= 1 {
		summary, err = e.runSequential(ctx, src)
	} else {
		summary, err = e.runSharded(ctx, src)
	}
	summary.Elapsed = time.Since(start)

	if err != nil {
		return summary, err
	}
	e.logger.InfoContext(ctx, "run complete",
		"applied", summary.Applied,
		"rejected", summary.Rejected,
		"malformed", summary.Malformed,
		"accounts", e.processor.Accounts().Len(),
		"workers", e.workers,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

func (e *Engine) runSequential(ctx context.Context, src Source) (Summary, error) {
	summary := newSummary()
	owners := claims{}
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return summary, nil
			}
			if e.skipMalformed(ctx, &summary, err) {
				continue
			}
			return summary, fmt.Errorf("read record: %w", err)
		}
		if err := e.apply(ctx, &summary, job{rec: rec, claimErr: owners.claim(rec)}); err != nil {
			return summary, err
		}
	}
}

func (e *Engine) runSharded(ctx context.Context, src Source) (Summary, error) {
	g, gctx := errgroup.WithContext(ctx)

	shards := make([]chan job, e.workers)
	partials := make([]Summary, e.workers)
	for i := range shards {
		shards[i] = make(chan job, shardBuffer)
		partials[i] = newSummary()
	}

	for i := range shards {
		g.Go(func() error {
			for j := range shards[i] {
				if err := e.apply(gctx, &partials[i], j); err != nil {
					return err
				}
			}
			return nil
		})
	}

	read := newSummary()
	owners := claims{}
	g.Go(func() error {
		defer func() {
			for _, shard := range shards {
				close(shard)
			}
		}()
		for {
			rec, err := src.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				if e.skipMalformed(gctx, &read, err) {
					continue
				}
				return fmt.Errorf("read record: %w", err)
			}
			select {
			case shards[int(rec.ClientID)%e.workers] <- job{rec: rec, claimErr: owners.claim(rec)}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err := g.Wait()
	for _, p := range partials {
		read.merge(p)
	}
	return read, err
}

func (e *Engine) apply(ctx context.Context, summary *Summary, j job) error {
	rec := j.rec
	var outcome Outcome
	if j.claimErr != nil {
		outcome = e.processor.Reject(rec, j.claimErr)
	} else {
		outcome = e.processor.Apply(ctx, rec)
	}
	if e.observer != nil {
		e.observer.Observe(ctx, outcome)
	}
	if errors.Is(outcome.Err, ErrLedgerUnavailable) {
		return fmt.Errorf("client %d tx %d: %w", rec.ClientID, rec.TxID, outcome.Err)
	}
	summary.add(outcome)
	return nil
}

func (e *Engine) skipMalformed(ctx context.Context, summary *Summary, err error) bool {
	if !errors.Is(err, transaction.ErrMalformedRecord) {
		return false
	}
	summary.Malformed++
	summary.Reasons[Reason(err)]++
	e.logger.WarnContext(ctx, "malformed record skipped", "error", err)
	return true
}
