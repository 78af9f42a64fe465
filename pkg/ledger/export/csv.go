package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"signalhouse/overture/pkg/ledger"
)

// CSVExporter writes records as CSV rows with a stable column order. The
// guardrail result set is flattened into one JSON-encoded column.
type CSVExporter struct {
	// IncludeHeader writes the column names as the first row.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export implements ledger.Exporter.
func (e *CSVExporter) Export(ctx context.Context, records []*ledger.Record, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return ledger.NewExportError("csv", len(records), err)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return ledger.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range records {
		row, err := recordToRow(record)
		if err != nil {
			return ledger.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row); err != nil {
			return ledger.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return ledger.NewExportError("csv", len(records), err)
	}
	return nil
}

func headerRow() []string {
	return []string{
		"seq", "id", "kind",
		"action_id", "subject_id", "channel", "action_kind",
		"campaign_id", "experiment_id", "variant_id",
		"verdict", "outcome",
		"human_override", "override_reason", "corrects_seq",
		"policy_version", "created_at", "results",
	}
}

func recordToRow(record *ledger.Record) ([]string, error) {
	results, err := json.Marshal(record.Results)
	if err != nil {
		return nil, err
	}

	return []string{
		strconv.FormatUint(record.Seq, 10),
		record.ID,
		string(record.Kind),
		record.ActionID,
		record.SubjectID,
		record.Channel,
		record.ActionKind,
		record.CampaignID,
		record.ExperimentID,
		record.VariantID,
		record.Verdict,
		record.Outcome,
		strconv.FormatBool(record.HumanOverride),
		record.OverrideReason,
		strconv.FormatUint(record.CorrectsSeq, 10),
		record.PolicyVersion,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(results),
	}, nil
}
