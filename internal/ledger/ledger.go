package ledger

import (
	"context"
	"errors"

	"github.com/congo-pay/accountant/internal/transaction"
)

var (
	// ErrNotFound indicates no record is stored under the requested transaction id.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction indicates the transaction id is already stored.
	// The first record stored under an id wins.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

const (
	// BackendMemory keeps the index in process memory.
	BackendMemory = "memory"
	// BackendRedis keeps the index in Redis keys scoped to the run.
	BackendRedis = "redis"
	// BackendPostgres keeps the index in a Postgres table scoped to the run.
	BackendPostgres = "postgres"
)

// Ledger is the append-only index of deposits and withdrawals seen so far,
// keyed by transaction id. Disputes, resolves and chargebacks look up the
// original record through it.
type Ledger interface {
	// Get returns the record stored under txID or ErrNotFound.
	Get(ctx context.Context, txID uint32) (transaction.Record, error)
	// Append stores rec if its id is free, otherwise returns ErrDuplicateTransaction.
	Append(ctx context.Context, rec transaction.Record) error
	// Close releases anything the run stored outside process memory.
	Close(ctx context.Context) error
}
