package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when available funds cannot cover a debit or hold.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotDisputed indicates the referenced transaction has no open dispute.
	ErrNotDisputed = errors.New("transaction not under dispute")

	// ErrAlreadyDisputed indicates the referenced transaction is already held.
	ErrAlreadyDisputed = errors.New("transaction already under dispute")

	// ErrInsufficientHeld means held funds are smaller than a disputed amount.
	// Correct bookkeeping never produces it.
	ErrInsufficientHeld = errors.New("insufficient held funds")

	// ErrAccountLocked rejects any mutation after a chargeback.
	ErrAccountLocked = errors.New("account locked")

	// ErrInvalidAmount rejects zero or negative primitive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvariant reports total != available + held.
	ErrInvariant = errors.New("balance invariant violated")
)

// Account is the mutable balance state of one client. Every primitive either
// succeeds leaving total == available + held, or fails leaving the account
// untouched. Callers serialise access through Registry.Update.
type Account struct {
	clientID  uint16
	available decimal.Decimal
	held      decimal.Decimal
	total     decimal.Decimal
	locked    bool
	disputed  map[uint32]decimal.Decimal
}

// New returns a zero-balance, unlocked account.
func New(clientID uint16) *Account {
	return &Account{
		clientID:  clientID,
		available: decimal.Zero,
		held:      decimal.Zero,
		total:     decimal.Zero,
		disputed:  make(map[uint32]decimal.Decimal),
	}
}

// Read-only accessors.
func (a *Account) ClientID() uint16           { return a.clientID }
func (a *Account) Available() decimal.Decimal { return a.available }
func (a *Account) Held() decimal.Decimal      { return a.held }
func (a *Account) Total() decimal.Decimal     { return a.total }
func (a *Account) Locked() bool               { return a.locked }

// Disputed reports whether tx is currently held and for how much.
func (a *Account) Disputed(tx uint32) (decimal.Decimal, bool) {
	amount, ok := a.disputed[tx]
	return amount, ok
}

// Credit adds amount to available and total.
func (a *Account) Credit(amount decimal.Decimal) error {
	if err := a.writable(amount); err != nil {
		return err
	}
	a.available = a.available.Add(amount)
	a.total = a.total.Add(amount)
	return nil
}

// Debit removes amount from available and total.
func (a *Account) Debit(amount decimal.Decimal) error {
	if err := a.writable(amount); err != nil {
		return err
	}
	if a.available.LessThan(amount) {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, a.available, amount)
	}
	a.available = a.available.Sub(amount)
	a.total = a.total.Sub(amount)
	return nil
}

// Hold moves amount from available to held under tx.
func (a *Account) Hold(tx uint32, amount decimal.Decimal) error {
	if err := a.writable(amount); err != nil {
		return err
	}
	if _, open := a.disputed[tx]; open {
		return fmt.Errorf("%w: tx %d", ErrAlreadyDisputed, tx)
	}
	if a.available.LessThan(amount) {
		return fmt.Errorf("%w: available %s, disputed %s", ErrInsufficientFunds, a.available, amount)
	}
	a.available = a.available.Sub(amount)
	a.held = a.held.Add(amount)
	a.disputed[tx] = amount
	return nil
}

// Release returns the amount held under tx to available.
func (a *Account) Release(tx uint32) error {
	amount, err := a.heldFor(tx)
	if err != nil {
		return err
	}
	a.held = a.held.Sub(amount)
	a.available = a.available.Add(amount)
	delete(a.disputed, tx)
	return nil
}

// Forfeit removes the amount held under tx from the account and locks it.
func (a *Account) Forfeit(tx uint32) error {
	amount, err := a.heldFor(tx)
	if err != nil {
		return err
	}
	a.held = a.held.Sub(amount)
	a.total = a.total.Sub(amount)
	a.locked = true
	delete(a.disputed, tx)
	return nil
}

// CheckInvariant verifies total == available + held.
func (a *Account) CheckInvariant() error {
	if sum := a.available.Add(a.held); !sum.Equal(a.total) {
		return fmt.Errorf("%w: client %d available %s + held %s != total %s",
			ErrInvariant, a.clientID, a.available, a.held, a.total)
	}
	return nil
}

func (a *Account) writable(amount decimal.Decimal) error {
	if a.locked {
		return ErrAccountLocked
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func (a *Account) heldFor(tx uint32) (decimal.Decimal, error) {
	if a.locked {
		return decimal.Decimal{}, ErrAccountLocked
	}
	amount, ok := a.disputed[tx]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: tx %d", ErrNotDisputed, tx)
	}
	if a.held.LessThan(amount) {
		return decimal.Decimal{}, fmt.Errorf("%w: held %s, disputed %s", ErrInsufficientHeld, a.held, amount)
	}
	return amount, nil
}

// Snapshot is a read-only copy of an account for output.
type Snapshot struct {
	ClientID  uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// Snapshot copies the current balances.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		ClientID:  a.clientID,
		Available: a.available,
		Held:      a.held,
		Total:     a.total,
		Locked:    a.locked,
	}
}
