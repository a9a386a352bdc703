package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/accountant/internal/transaction"
)

const testDatabaseEnvVar = "ACCOUNTANT_TEST_DATABASE_URL"

func TestPostgresLedger(t *testing.T) {
	url := os.Getenv(testDatabaseEnvVar)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnvVar)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	l := NewPostgresLedger(pool, uuid.New())
	require.NoError(t, l.EnsureSchema(ctx))
	defer l.Close(ctx) // nolint:errcheck

	_, err = l.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.Append(ctx, transaction.Deposit(4, 1, decimal.RequireFromString("12.3456"))))
	require.ErrorIs(t, l.Append(ctx, transaction.Withdrawal(5, 1, decimal.NewFromInt(1))), ErrDuplicateTransaction)

	got, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, transaction.KindDeposit, got.Kind)
	assert.Equal(t, uint16(4), got.ClientID)
	assert.True(t, got.Amount.Decimal.Equal(decimal.RequireFromString("12.3456")))

	other := NewPostgresLedger(pool, uuid.New())
	_, err = other.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound, "runs must not see each other's records")

	require.NoError(t, l.Close(ctx))
	_, err = l.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}
