// Package report renders the final account table.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/congo-pay/accountant/internal/account"
)

// Scale is the number of fractional digits rendered for money.
const Scale = 4

// SheetName is the worksheet holding the table in XLSX output.
const SheetName = "Accounts"

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Format selects the renderer.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

var header = []string{"client", "available", "held", "total", "locked"}

// Row is one rendered account with money at fixed precision.
type Row struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

func (r Row) fields() []string {
	return []string{
		strconv.FormatUint(uint64(r.Client), 10),
		r.Available,
		r.Held,
		r.Total,
		strconv.FormatBool(r.Locked),
	}
}

// Rows converts snapshots to rendered rows, preserving their order.
func Rows(snaps []account.Snapshot) []Row {
	rows := make([]Row, len(snaps))
	for i, s := range snaps {
		rows[i] = Row{
			Client:    s.ClientID,
			Available: s.Available.StringFixed(Scale),
			Held:      s.Held.StringFixed(Scale),
			Total:     s.Total.StringFixed(Scale),
			Locked:    s.Locked,
		}
	}
	return rows
}

// Write renders snaps to w in the given format.
func Write(w io.Writer, format Format, snaps []account.Snapshot) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, snaps)
	case FormatXLSX:
		return WriteXLSX(w, snaps)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteCSV writes the header and one line per account.
func WriteCSV(w io.Writer, snaps []account.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range Rows(snaps) {
		if err := cw.Write(row.fields()); err != nil {
			return fmt.Errorf("write client %d: %w", row.Client, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the table as a workbook with a single Accounts sheet.
func WriteXLSX(w io.Writer, snaps []account.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, row := range Rows(snaps) {
		if err := setRow(f, i+2, row.fields()); err != nil {
			return fmt.Errorf("client %d: %w", row.Client, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(SheetName, cell, &cells)
}
