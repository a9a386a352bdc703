package ledger

import (
	"context"
	"sync"

	"github.com/congo-pay/accountant/internal/transaction"
)

type inMemoryLedger struct {
	mu      sync.RWMutex
	records map[uint32]transaction.Record
}

// NewInMemory creates a concurrency-safe in-memory transaction index.
func NewInMemory() Ledger {
	return &inMemoryLedger{records: make(map[uint32]transaction.Record)}
}

func (l *inMemoryLedger) Get(_ context.Context, txID uint32) (transaction.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[txID]
	if !ok {
		return transaction.Record{}, ErrNotFound
	}
	return rec, nil
}

func (l *inMemoryLedger) Append(_ context.Context, rec transaction.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.TxID]; exists {
		return ErrDuplicateTransaction
	}
	l.records[rec.TxID] = rec
	return nil
}

func (l *inMemoryLedger) Close(_ context.Context) error {
	return nil
}
