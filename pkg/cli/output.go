package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatTable renders aligned columns for terminals (default).
	FormatTable OutputFormat = "table"
	// FormatJSON renders indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV renders RFC 4180 rows. Ledger commands delegate to the
	// ledger export writers for it.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --format flag value. Empty means table.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: table, json, csv)", s)
	}
}

// WriteJSON renders v as indented JSON, one value per call.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders aligned columns. Rows buffer until Flush.
type Table struct {
	tw *tabwriter.Writer
}

// NewTable starts a table, writing the header row if any headers are
// given.
func NewTable(w io.Writer, headers ...string) *Table {
	t := &Table{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	if len(headers) > 0 {
		t.Row(headers...)
	}
	return t
}

// Row appends one row of cells.
func (t *Table) Row(cells ...string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(t.tw, "\t")
		}
		fmt.Fprint(t.tw, cell)
	}
	fmt.Fprintln(t.tw)
}

// Flush writes the buffered rows with their final column widths.
func (t *Table) Flush() error {
	return t.tw.Flush()
}
