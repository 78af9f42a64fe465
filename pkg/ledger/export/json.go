package export

import (
	"context"
	"encoding/json"
	"io"

	"signalhouse/overture/pkg/ledger"
)

// JSONExporter writes records as a JSON array.
type JSONExporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export implements ledger.Exporter. The output is always an array so
// downstream consumers parse one shape regardless of result size.
func (e *JSONExporter) Export(ctx context.Context, records []*ledger.Record, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return ledger.NewExportError("json", len(records), err)
	}
	if records == nil {
		records = []*ledger.Record{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return ledger.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return ledger.NewExportError("json", len(records), err)
	}
	return nil
}
