package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountant/internal/account"
	"github.com/congo-pay/accountant/internal/ledger"
	"github.com/congo-pay/accountant/internal/transaction"
)

// Processor applies records to accounts one at a time. It owns no state of its
// own: balances live in the registry, referenced transactions in the ledger.
type Processor struct {
	ledger   ledger.Ledger
	accounts *account.Registry
}

// NewProcessor wires a processor over the given ledger and registry.
func NewProcessor(l ledger.Ledger, accounts *account.Registry) *Processor {
	return &Processor{ledger: l, accounts: accounts}
}

// Accounts exposes the registry the processor mutates.
func (p *Processor) Accounts() *account.Registry {
	return p.accounts
}

// Apply runs the state transition for rec against its client's account.
// A rejected record leaves the account unchanged.
func (p *Processor) Apply(ctx context.Context, rec transaction.Record) Outcome {
	if rec.Kind == transaction.KindUnknown {
		return Outcome{Record: rec, Err: rec.Validate()}
	}

	err := p.accounts.Update(rec.ClientID, func(acct *account.Account) error {
		if acct.Locked() {
			return account.ErrAccountLocked
		}

		var err error
		switch rec.Kind {
		case transaction.KindDeposit:
			err = p.fund(ctx, rec, acct.Credit, acct.Debit)
		case transaction.KindWithdrawal:
			err = p.fund(ctx, rec, acct.Debit, acct.Credit)
		case transaction.KindDispute:
			err = p.dispute(ctx, acct, rec)
		case transaction.KindResolve:
			err = acct.Release(rec.TxID)
		case transaction.KindChargeback:
			err = acct.Forfeit(rec.TxID)
		default:
			err = fmt.Errorf("%w: %s", transaction.ErrUnsupportedKind, rec.Kind)
		}
		if err != nil {
			return err
		}
		return acct.CheckInvariant()
	})
	return Outcome{Record: rec, Err: err}
}

// Reject fails rec with cause without touching balances. The client's account
// is still created, and a locked account reports ErrAccountLocked as Apply does.
func (p *Processor) Reject(rec transaction.Record, cause error) Outcome {
	err := p.accounts.Update(rec.ClientID, func(acct *account.Account) error {
		if acct.Locked() {
			return account.ErrAccountLocked
		}
		return cause
	})
	return Outcome{Record: rec, Err: err}
}

// fund applies a deposit or withdrawal and records it in the ledger. The
// ledger append follows the mutation; if another writer claimed the id in
// between, revert undoes the mutation.
func (p *Processor) fund(ctx context.Context, rec transaction.Record, apply, revert func(decimal.Decimal) error) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	switch _, err := p.ledger.Get(ctx, rec.TxID); {
	case err == nil:
		return fmt.Errorf("%w: tx %d", ledger.ErrDuplicateTransaction, rec.TxID)
	case !errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	amount := rec.Amount.Decimal
	if err := apply(amount); err != nil {
		return err
	}

	if err := p.ledger.Append(ctx, rec); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) {
			err = fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
		}
		if revertErr := revert(amount); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	return nil
}

func (p *Processor) dispute(ctx context.Context, acct *account.Account, rec transaction.Record) error {
	original, err := p.ledger.Get(ctx, rec.TxID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: tx %d", ErrUnknownTransaction, rec.TxID)
		}
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if original.ClientID != rec.ClientID {
		return fmt.Errorf("%w: tx %d belongs to another client", ErrUnknownTransaction, rec.TxID)
	}
	if !original.Amount.Valid || !original.Amount.Decimal.IsPositive() {
		return fmt.Errorf("%w: tx %d has no amount", ErrUnknownTransaction, rec.TxID)
	}
	return acct.Hold(rec.TxID, original.Amount.Decimal)
}
