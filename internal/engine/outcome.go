package engine

import (
	"errors"
	"time"

	"github.com/congo-pay/accountant/internal/account"
	"github.com/congo-pay/accountant/internal/ledger"
	"github.com/congo-pay/accountant/internal/transaction"
)

var (
	// ErrUnknownTransaction covers references to a transaction that is not in the
	// ledger, belongs to another client, or carries no amount.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrLedgerUnavailable wraps backend failures of the transaction ledger.
	// Unlike every other outcome it aborts the run.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Outcome is the result of applying one record.
type Outcome struct {
	Record transaction.Record
	Err    error
}

// Applied reports whether the record changed the account.
func (o Outcome) Applied() bool {
	return o.Err == nil
}

// Reason returns the stable reason code of a rejected outcome, or "" if applied.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return Reason(o.Err)
}

var reasonCodes = []struct {
	err  error
	code string
}{
	{transaction.ErrMalformedRecord, "malformed_record"},
	{transaction.ErrUnsupportedKind, "unsupported_kind"},
	{transaction.ErrMissingAmount, "missing_amount"},
	{transaction.ErrNonPositiveAmount, "non_positive_amount"},
	{transaction.ErrAmountOutOfRange, "amount_out_of_range"},
	{account.ErrAccountLocked, "account_locked"},
	{account.ErrInsufficientFunds, "insufficient_funds"},
	{account.ErrAlreadyDisputed, "already_disputed"},
	{account.ErrNotDisputed, "not_disputed"},
	{account.ErrInsufficientHeld, "insufficient_held"},
	{account.ErrInvalidAmount, "invalid_amount"},
	{account.ErrInvariant, "invariant_violated"},
	{ErrUnknownTransaction, "unknown_transaction"},
	{ledger.ErrDuplicateTransaction, "duplicate_transaction"},
	{ErrLedgerUnavailable, "ledger_unavailable"},
}

// Reason maps an error to its snake_case reason code.
func Reason(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "internal_error"
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Applied   int            `json:"applied"`
	Rejected  int            `json:"rejected"`
	Malformed int            `json:"malformed"`
	Reasons   map[string]int `json:"reasons"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
}

func newSummary() Summary {
	return Summary{Reasons: make(map[string]int)}
}

func (s *Summary) add(o Outcome) {
	if o.Applied() {
		s.Applied++
		return
	}
	s.Rejected++
	s.Reasons[o.Reason()]++
}

func (s *Summary) merge(other Summary) {
	s.Applied += other.Applied
	s.Rejected += other.Rejected
	s.Malformed += other.Malformed
	for reason, n := range other.Reasons {
		s.Reasons[reason] += n
	}
}
