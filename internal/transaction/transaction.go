package transaction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedRecord marks input that could not be parsed into a Record.
	// Such input never reaches the processor.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnsupportedKind is returned for a kind outside the recognised set.
	ErrUnsupportedKind = errors.New("unsupported transaction kind")

	// ErrMissingAmount indicates a deposit or withdrawal without an amount.
	ErrMissingAmount = errors.New("missing amount")

	// ErrNonPositiveAmount indicates a deposit or withdrawal whose amount is zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrAmountOutOfRange indicates an amount with too many fractional or integer digits.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// Amount bounds. Anything wider is refused before it reaches account arithmetic.
const (
	MaxAmountScale         = 28
	MaxAmountIntegerDigits = 28
)

// Kind enumerates the transaction kinds the processor understands.
type Kind uint8

const (
	// KindUnknown is the zero value, carried by records whose kind did not parse.
	KindUnknown Kind = iota
	KindDeposit
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindDeposit:    "deposit",
	KindWithdrawal: "withdrawal",
	KindDispute:    "dispute",
	KindResolve:    "resolve",
	KindChargeback: "chargeback",
}

// ParseKind normalises s and maps it to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return KindDeposit, nil
	case "withdrawal":
		return KindWithdrawal, nil
	case "dispute":
		return KindDispute, nil
	case "resolve":
		return KindResolve, nil
	case "chargeback":
		return KindChargeback, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unrecognised names are an error.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Funding reports whether the kind moves money on its own and may later be referenced.
func (k Kind) Funding() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Record is one parsed input line.
type Record struct {
	Kind     Kind                `json:"kind"`
	RawKind  string              `json:"-"`
	ClientID uint16              `json:"client"`
	TxID     uint32              `json:"tx"`
	Amount   decimal.NullDecimal `json:"amount"`
}

// Validate checks the amount rules for deposits and withdrawals. Other kinds
// carry no amount of their own, so any amount on them is ignored.
func (r Record) Validate() error {
	if r.Kind == KindUnknown {
		if r.RawKind != "" {
			return fmt.Errorf("%w: %q", ErrUnsupportedKind, r.RawKind)
		}
		return ErrUnsupportedKind
	}
	if !r.Kind.Funding() {
		return nil
	}
	if !r.Amount.Valid {
		return ErrMissingAmount
	}
	if !r.Amount.Decimal.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNonPositiveAmount, r.Amount.Decimal)
	}
	return CheckAmount(r.Amount.Decimal)
}

// CheckAmount reports ErrAmountOutOfRange when d has more than MaxAmountScale
// fractional digits or more than MaxAmountIntegerDigits integer digits.
func CheckAmount(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxAmountScale {
		return fmt.Errorf("%w: more than %d fractional digits", ErrAmountOutOfRange, MaxAmountScale)
	}
	if int64(d.NumDigits())+exp > MaxAmountIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrAmountOutOfRange, MaxAmountIntegerDigits)
	}
	return nil
}

// Deposit builds a deposit record.
func Deposit(client uint16, tx uint32, amount decimal.Decimal) Record {
	return Record{Kind: KindDeposit, ClientID: client, TxID: tx, Amount: decimal.NewNullDecimal(amount)}
}

// Withdrawal builds a withdrawal record.
func Withdrawal(client uint16, tx uint32, amount decimal.Decimal) Record {
	return Record{Kind: KindWithdrawal, ClientID: client, TxID: tx, Amount: decimal.NewNullDecimal(amount)}
}

// Dispute builds a dispute record referencing tx.
func Dispute(client uint16, tx uint32) Record {
	return Record{Kind: KindDispute, ClientID: client, TxID: tx}
}

// Resolve builds a resolve record referencing tx.
func Resolve(client uint16, tx uint32) Record {
	return Record{Kind: KindResolve, ClientID: client, TxID: tx}
}

// Chargeback builds a chargeback record referencing tx.
func Chargeback(client uint16, tx uint32) Record {
	return Record{Kind: KindChargeback, ClientID: client, TxID: tx}
}
