package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertBalances(t *testing.T, a *Account, available, held, total string) {
	t.Helper()
	assert.True(t, a.Available().Equal(d(available)), "available: want %s got %s", available, a.Available())
	assert.True(t, a.Held().Equal(d(held)), "held: want %s got %s", held, a.Held())
	assert.True(t, a.Total().Equal(d(total)), "total: want %s got %s", total, a.Total())
	require.NoError(t, a.CheckInvariant())
}

func TestNewAccountIsEmpty(t *testing.T) {
	a := New(3)
	assert.Equal(t, uint16(3), a.ClientID())
	assert.False(t, a.Locked())
	assertBalances(t, a, "0", "0", "0")
}

func TestCreditDebit(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("5.0")))
	assertBalances(t, a, "5", "0", "5")

	require.NoError(t, a.Debit(d("3.0")))
	assertBalances(t, a, "2", "0", "2")

	err := a.Debit(d("10"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assertBalances(t, a, "2", "0", "2")

	require.NoError(t, a.Debit(d("2")))
	assertBalances(t, a, "0", "0", "0")
}

func TestPrimitivesRejectNonPositive(t *testing.T) {
	a := New(1)
	require.ErrorIs(t, a.Credit(decimal.Zero), ErrInvalidAmount)
	require.ErrorIs(t, a.Debit(d("-1")), ErrInvalidAmount)
	require.ErrorIs(t, a.Hold(1, decimal.Zero), ErrInvalidAmount)
	assertBalances(t, a, "0", "0", "0")
}

func TestHoldReleaseForfeit(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("5")))

	require.NoError(t, a.Hold(1, d("5")))
	assertBalances(t, a, "0", "5", "5")
	amount, ok := a.Disputed(1)
	require.True(t, ok)
	assert.True(t, amount.Equal(d("5")))

	require.ErrorIs(t, a.Hold(1, d("5")), ErrAlreadyDisputed)
	assertBalances(t, a, "0", "5", "5")

	require.NoError(t, a.Release(1))
	assertBalances(t, a, "5", "0", "5")
	_, ok = a.Disputed(1)
	assert.False(t, ok)

	require.ErrorIs(t, a.Release(1), ErrNotDisputed)

	require.NoError(t, a.Hold(1, d("5")))
	require.NoError(t, a.Forfeit(1))
	assertBalances(t, a, "0", "0", "0")
	assert.True(t, a.Locked())
}

func TestHoldInsufficientFunds(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("2")))

	require.ErrorIs(t, a.Hold(7, d("3")), ErrInsufficientFunds)
	assertBalances(t, a, "2", "0", "2")
	_, ok := a.Disputed(7)
	assert.False(t, ok)
}

func TestLockedAccountRejectsEverything(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("10")))
	require.NoError(t, a.Hold(1, d("4")))
	require.NoError(t, a.Hold(2, d("1")))
	require.NoError(t, a.Forfeit(1))
	assertBalances(t, a, "5", "1", "6")

	require.ErrorIs(t, a.Credit(d("1")), ErrAccountLocked)
	require.ErrorIs(t, a.Debit(d("1")), ErrAccountLocked)
	require.ErrorIs(t, a.Hold(3, d("1")), ErrAccountLocked)
	require.ErrorIs(t, a.Release(2), ErrAccountLocked)
	require.ErrorIs(t, a.Forfeit(2), ErrAccountLocked)
	assertBalances(t, a, "5", "1", "6")
}

func TestInsufficientHeldGuard(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("5")))
	require.NoError(t, a.Hold(1, d("5")))

	// corrupt the bookkeeping to reach the guard
	a.held = d("1")
	a.total = a.available.Add(a.held)

	require.ErrorIs(t, a.Release(1), ErrInsufficientHeld)
	require.ErrorIs(t, a.Forfeit(1), ErrInsufficientHeld)
	assert.False(t, a.Locked())
	assertBalances(t, a, "0", "1", "1")
}

func TestCheckInvariantDetectsDrift(t *testing.T) {
	a := New(9)
	a.total = d("1")
	require.ErrorIs(t, a.CheckInvariant(), ErrInvariant)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	a := New(1)
	require.NoError(t, a.Credit(d("1.5")))
	require.NoError(t, a.Hold(1, d("1.5")))
	before := a.Snapshot()

	require.NoError(t, a.Credit(d("0.1234")))
	require.NoError(t, a.Debit(d("0.1234")))

	after := a.Snapshot()
	assert.True(t, before.Available.Equal(after.Available))
	assert.True(t, before.Held.Equal(after.Held))
	assert.True(t, before.Total.Equal(after.Total))
}
