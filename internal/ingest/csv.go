// Package ingest turns transaction CSV input into records for the engine.
//
// The expected layout is a header row naming the columns type, client, tx and
// amount, followed by one transaction per row:
//
//	type, client, tx, amount
//	deposit, 1, 1, 1.0
//	dispute, 1, 1,
//
// Fields are whitespace-trimmed and rows may omit the trailing amount column.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountant/internal/transaction"
)

// ErrMissingColumn is returned by NewReader when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

const (
	columnKind   = "type"
	columnClient = "client"
	columnTx     = "tx"
	columnAmount = "amount"

	// longest amount text accepted before parsing
	maxAmountLength = 64
)

// Reader streams records from CSV input. It satisfies engine.Source.
type Reader struct {
	csv     *csv.Reader
	kind    int
	client  int
	tx      int
	amount  int
	started bool
}

// NewReader reads the header row from r and returns a Reader positioned at the
// first data row. Empty input yields a Reader that returns io.EOF at once.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	configureReader(cr)

	reader := &Reader{csv: cr, kind: -1, client: -1, tx: -1, amount: -1}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return reader, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := reader.mapHeader(header); err != nil {
		return nil, err
	}
	reader.started = true
	return reader, nil
}

func configureReader(r *csv.Reader) {
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.ReuseRecord = true
}

func (r *Reader) mapHeader(header []string) error {
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnKind:
			r.kind = i
		case columnClient:
			r.client = i
		case columnTx:
			r.tx = i
		case columnAmount:
			r.amount = i
		}
	}

	var missing []string
	if r.kind < 0 {
		missing = append(missing, columnKind)
	}
	if r.client < 0 {
		missing = append(missing, columnClient)
	}
	if r.tx < 0 {
		missing = append(missing, columnTx)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Next returns the next record. Rows that cannot be parsed yield an error
// wrapping transaction.ErrMalformedRecord; the reader stays usable after them.
// io.EOF marks the end of input.
func (r *Reader) Next() (transaction.Record, error) {
	if !r.started {
		return transaction.Record{}, io.EOF
	}

	row, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return transaction.Record{}, io.EOF
		}
		return transaction.Record{}, fmt.Errorf("read row: %w", err)
	}
	line, _ := r.csv.FieldPos(0)

	rec, err := r.parse(row)
	if err != nil {
		return transaction.Record{}, fmt.Errorf("line %d: %w: %w", line, transaction.ErrMalformedRecord, err)
	}
	return rec, nil
}

func (r *Reader) parse(row []string) (transaction.Record, error) {
	var rec transaction.Record

	raw := field(row, r.kind)
	kind, err := transaction.ParseKind(raw)
	if err != nil {
		// passed on so the processor reports it as unsupported
		rec.RawKind = raw
	}
	rec.Kind = kind

	client, err := strconv.ParseUint(field(row, r.client), 10, 16)
	if err != nil {
		return rec, fmt.Errorf("client %q: %w", field(row, r.client), errors.Unwrap(err))
	}
	rec.ClientID = uint16(client)

	tx, err := strconv.ParseUint(field(row, r.tx), 10, 32)
	if err != nil {
		return rec, fmt.Errorf("tx %q: %w", field(row, r.tx), errors.Unwrap(err))
	}
	rec.TxID = uint32(tx)

	if value := field(row, r.amount); value != "" {
		if len(value) > maxAmountLength {
			return rec, fmt.Errorf("amount of %d characters: %w", len(value), transaction.ErrAmountOutOfRange)
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return rec, fmt.Errorf("amount %q: %w", value, err)
		}
		if err := transaction.CheckAmount(amount); err != nil {
			return rec, fmt.Errorf("amount %q: %w", value, err)
		}
		rec.Amount = decimal.NewNullDecimal(amount)
	}
	return rec, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
