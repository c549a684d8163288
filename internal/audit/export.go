package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// exportHeader is the column order of the flat tabular export consumed by
// the portal's export-to-file feature.
var exportHeader = []string{
	"timestamp", "principal_id", "principal_role", "action",
	"resource_type", "resource_id", "result", "risk_level", "correlation_id",
}

// WriteCSV writes one flat record per event to w, oldest first. Events are
// expected in the order the store returned them (timestamp ascending).
func WriteCSV(w io.Writer, events []*Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, e := range events {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.PrincipalID,
			e.PrincipalRole,
			e.Action,
			e.ResourceType,
			e.ResourceID,
			string(e.Result),
			string(e.RiskLevel),
			e.CorrelationID.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write export record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
