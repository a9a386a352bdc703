package engine

import (
	"context"
	"log/slog"

	"github.com/congo-pay/accountant/internal/transaction"
)

// Observer receives every outcome the engine produces. Implementations must be
// safe for concurrent use when the engine runs with more than one worker.
type Observer interface {
	Observe(ctx context.Context, outcome Outcome)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, outcome Outcome)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// LogObserver writes rejected outcomes to the structured logger. Applied
// outcomes are logged at debug level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver constructs a logging observer.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// Observe logs the outcome.
func (o *LogObserver) Observe(ctx context.Context, outcome Outcome) {
	if o == nil || o.logger == nil {
		return
	}
	rec := outcome.Record
	if outcome.Applied() {
		o.logger.DebugContext(ctx, "transaction applied", "client", rec.ClientID, "tx", rec.TxID, "kind", rec.Kind.String())
		return
	}
	o.logger.WarnContext(ctx, "transaction rejected",
		"client", rec.ClientID,
		"tx", rec.TxID,
		"kind", kindLabel(rec),
		"reason", outcome.Reason(),
		"error", outcome.Err,
	)
}

func kindLabel(rec transaction.Record) string {
	if rec.RawKind != "" {
		return rec.RawKind
	}
	return rec.Kind.String()
}
