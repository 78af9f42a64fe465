package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/ledger/export"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and export the audit ledger",
	Long: `Query the append-only audit ledger the decision pipeline writes.

The filter flags mirror the HTTP query parameters, so a query tested
here translates directly to the records endpoint.`,
}

// ledgerFilters is shared by list and export; only one subcommand parses
// per invocation. The limit lives in the per-command flag structs because
// its default differs.
var ledgerFilters struct {
	subjectID    string
	actionID     string
	experimentID string
	verdict      string
	kind         string
	since        string
	until        string
	offset       int
}

var ledgerListFlags struct {
	format string
	limit  int
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	Long: `List audit records matching the given filters, newest last.

Examples:
  # Everything the default limit returns
  overture ledger list

  # One subject's rejections this week
  overture ledger list --subject cust-1042 --verdict rejected --since 2026-08-18T00:00:00Z

  # Corrections only, as JSON
  overture ledger list --kind correction --format json`,
	RunE: ledgerList,
}

var ledgerExportFlags struct {
	format   string
	output   string
	limit    int
	pretty   bool
	noHeader bool
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records as JSON or CSV",
	Long: `Export audit records matching the given filters.

Unlike list, export defaults to the maximum query limit so a filtered
export captures the full result set in one run.

Examples:
  # Full ledger as a JSON array
  overture ledger export --output audit.json

  # One campaign's decisions for a spreadsheet
  overture ledger export --format csv --subject cust-1042 --output subject.csv`,
	RunE: ledgerExport,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)

	for _, cmd := range []*cobra.Command{ledgerListCmd, ledgerExportCmd} {
		cmd.Flags().StringVar(&ledgerFilters.subjectID, "subject", "", "filter by subject ID")
		cmd.Flags().StringVar(&ledgerFilters.actionID, "action", "", "filter by action ID")
		cmd.Flags().StringVar(&ledgerFilters.experimentID, "experiment", "", "filter by experiment ID")
		cmd.Flags().StringVar(&ledgerFilters.verdict, "verdict", "", "filter by verdict (approved, rejected, pending_review)")
		cmd.Flags().StringVar(&ledgerFilters.kind, "kind", "", "filter by record kind (decision, correction)")
		cmd.Flags().StringVar(&ledgerFilters.since, "since", "", "records created at or after this RFC3339 time")
		cmd.Flags().StringVar(&ledgerFilters.until, "until", "", "records created at or before this RFC3339 time")
		cmd.Flags().IntVar(&ledgerFilters.offset, "offset", 0, "records to skip")
	}
	ledgerListCmd.Flags().IntVar(&ledgerListFlags.limit, "limit", 0, "maximum records to return (0 = default limit)")
	ledgerListCmd.Flags().StringVar(&ledgerListFlags.format, "format", "table", "output format: table, json, csv")

	ledgerExportCmd.Flags().IntVar(&ledgerExportFlags.limit, "limit", ledger.QueryMaxLimit, "maximum records to export")

	ledgerExportCmd.Flags().StringVar(&ledgerExportFlags.format, "format", "json", "export format: json, csv")
	ledgerExportCmd.Flags().StringVarP(&ledgerExportFlags.output, "output", "o", "", "write to this file instead of stdout")
	ledgerExportCmd.Flags().BoolVar(&ledgerExportFlags.pretty, "pretty", false, "indent JSON output")
	ledgerExportCmd.Flags().BoolVar(&ledgerExportFlags.noHeader, "no-header", false, "omit the CSV header row")
}

// ledgerQuery builds and validates the query from the filter flags.
func ledgerQuery(limit int) (*ledger.Query, error) {
	q := &ledger.Query{
		SubjectID:    ledgerFilters.subjectID,
		ActionID:     ledgerFilters.actionID,
		ExperimentID: ledgerFilters.experimentID,
		Verdict:      ledgerFilters.verdict,
		Kind:         ledger.RecordKind(ledgerFilters.kind),
		Limit:        limit,
		Offset:       ledgerFilters.offset,
	}
	if ledgerFilters.since != "" {
		t, err := time.Parse(time.RFC3339, ledgerFilters.since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		q.Since = &t
	}
	if ledgerFilters.until != "" {
		t, err := time.Parse(time.RFC3339, ledgerFilters.until)
		if err != nil {
			return nil, fmt.Errorf("invalid --until: %w", err)
		}
		q.Until = &t
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// readLedger opens the configured store and runs the flag-built query.
func readLedger(ctx context.Context, limit int) ([]*ledger.Record, error) {
	cfg, _, err := loadConfigOrDefaults()
	if err != nil {
		return nil, err
	}
	query, err := ledgerQuery(limit)
	if err != nil {
		return nil, err
	}

	store, err := openLedger(cfg, cliLogger())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Read(ctx, query)
}

func ledgerList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(ledgerListFlags.format)
	if err != nil {
		return err
	}

	ctx := context.Background()
	records, err := readLedger(ctx, ledgerListFlags.limit)
	if err != nil {
		return cli.NewCommandError("ledger list", err)
	}

	switch format {
	case cli.FormatJSON:
		return cli.WriteJSON(os.Stdout, records)
	case cli.FormatCSV:
		return export.NewCSVExporter(true).Export(ctx, records, os.Stdout)
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	tbl := cli.NewTable(os.Stdout, "SEQ", "KIND", "ACTION", "SUBJECT", "CHANNEL", "VERDICT", "OUTCOME", "CREATED")
	for _, r := range records {
		tbl.Row(
			strconv.FormatUint(r.Seq, 10),
			string(r.Kind),
			r.ActionID,
			r.SubjectID,
			r.Channel,
			r.Verdict,
			r.Outcome,
			r.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d records\n", len(records))
	return nil
}

func ledgerExport(cmd *cobra.Command, args []string) error {
	var exporter ledger.Exporter
	switch ledgerExportFlags.format {
	case "json":
		exporter = export.NewJSONExporter(ledgerExportFlags.pretty)
	case "csv":
		exporter = export.NewCSVExporter(!ledgerExportFlags.noHeader)
	default:
		return fmt.Errorf("unsupported export format %q (supported: json, csv)", ledgerExportFlags.format)
	}

	ctx := context.Background()
	records, err := readLedger(ctx, ledgerExportFlags.limit)
	if err != nil {
		return cli.NewCommandError("ledger export", err)
	}

	var w io.Writer = os.Stdout
	if ledgerExportFlags.output != "" {
		f, err := os.Create(ledgerExportFlags.output)
		if err != nil {
			return cli.NewCommandError("ledger export", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter.Export(ctx, records, w); err != nil {
		return cli.NewCommandError("ledger export", err)
	}
	if ledgerExportFlags.output != "" {
		fmt.Printf("✓ Exported %d records to %s\n", len(records), ledgerExportFlags.output)
	}
	return nil
}
