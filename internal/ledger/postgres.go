package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountant/internal/transaction"
)

const schemaDDL = `
        CREATE TABLE IF NOT EXISTS ledger_transactions (
            run_id    uuid    NOT NULL,
            tx_id     bigint  NOT NULL,
            client_id integer NOT NULL,
            kind      text    NOT NULL,
            amount    numeric,
            PRIMARY KEY (run_id, tx_id)
        )`

// PostgresLedger persists the transaction index of one run in PostgreSQL.
type PostgresLedger struct {
	db    *pgxpool.Pool
	runID uuid.UUID
}

// NewPostgresLedger constructs a Postgres-backed index for the run identified by runID.
func NewPostgresLedger(db *pgxpool.Pool, runID uuid.UUID) *PostgresLedger {
	return &PostgresLedger{db: db, runID: runID}
}

// EnsureSchema creates the backing table when it does not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Get loads the record stored under txID for this run.
func (l *PostgresLedger) Get(ctx context.Context, txID uint32) (transaction.Record, error) {
	const query = `
        SELECT client_id, kind, amount::text
        FROM ledger_transactions
        WHERE run_id = $1 AND tx_id = $2`

	var (
		clientID int32
		kind     string
		amount   *string
	)
	if err := l.db.QueryRow(ctx, query, l.runID, int64(txID)).Scan(&clientID, &kind, &amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction.Record{}, ErrNotFound
		}
		return transaction.Record{}, err
	}

	parsedKind, err := transaction.ParseKind(kind)
	if err != nil {
		return transaction.Record{}, fmt.Errorf("stored tx %d: %w", txID, err)
	}
	rec := transaction.Record{Kind: parsedKind, ClientID: uint16(clientID), TxID: txID}
	if amount != nil {
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return transaction.Record{}, fmt.Errorf("stored tx %d amount: %w", txID, err)
		}
		rec.Amount = decimal.NewNullDecimal(value)
	}
	return rec, nil
}

// Append inserts rec unless the run already stored the same transaction id.
func (l *PostgresLedger) Append(ctx context.Context, rec transaction.Record) error {
	var amount *string
	if rec.Amount.Valid {
		s := rec.Amount.Decimal.String()
		amount = &s
	}
	cmd, err := l.db.Exec(ctx, `INSERT INTO ledger_transactions (run_id, tx_id, client_id, kind, amount)
        VALUES ($1, $2, $3, $4, $5::numeric)
        ON CONFLICT (run_id, tx_id) DO NOTHING`,
		l.runID, int64(rec.TxID), int32(rec.ClientID), rec.Kind.String(), amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

// Close removes the run's rows; nothing survives past the run.
func (l *PostgresLedger) Close(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `DELETE FROM ledger_transactions WHERE run_id = $1`, l.runID)
	return err
}
