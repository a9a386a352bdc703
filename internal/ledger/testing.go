package ledger

import "github.com/congo-pay/accountant/internal/transaction"

// Seed is a test helper that stores records directly when using the in-memory ledger,
// overwriting whatever is stored under the same ids.
func Seed(l Ledger, records ...transaction.Record) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		for _, rec := range records {
			mem.records[rec.TxID] = rec
		}
	}
}

// Len reports how many records the in-memory ledger holds; -1 for other backends.
func Len(l Ledger) int {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return len(mem.records)
	}
	return -1
}
