// Package compliance aggregates the audit trail into a scored report over
// a time window. It is a pure read-side aggregation with no side effects.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/platform/clock"
)

// Report summarizes audit activity over a window. Data access counts
// non-denied events, violations count denied and failure events, and the
// score is 100 x (1 - violations/total), clamped to [0,100]; an empty
// window scores a clean 100.
type Report struct {
	WindowStart            time.Time `json:"window_start"`
	WindowEnd              time.Time `json:"window_end"`
	TotalEvents            int       `json:"total_events"`
	TotalDataAccess        int       `json:"total_data_access"`
	TotalViolations        int       `json:"total_violations"`
	OverallComplianceScore float64   `json:"overall_compliance_score"`
	GeneratedAt            time.Time `json:"generated_at"`
}

// Reporter computes compliance reports from the audit log.
type Reporter struct {
	rec   *audit.Recorder
	clock clock.Clock
}

// NewReporter creates a Reporter.
func NewReporter(rec *audit.Recorder, clk clock.Clock) *Reporter {
	return &Reporter{rec: rec, clock: clk}
}

// Generate aggregates all events with start <= timestamp <= end.
func (r *Reporter) Generate(ctx context.Context, start, end time.Time) (*Report, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid window: end %s before start %s", end, start)
	}

	events, err := r.rec.QueryEvents(ctx, audit.Query{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	report := &Report{
		WindowStart: start,
		WindowEnd:   end,
		TotalEvents: len(events),
		GeneratedAt: r.clock.Now(),
	}
	// Data access counts every non-denied event; a failure is both a
	// violation and an access attempt that reached the data layer.
	for _, e := range events {
		switch e.Result {
		case audit.ResultDenied:
			report.TotalViolations++
		case audit.ResultFailure:
			report.TotalViolations++
			report.TotalDataAccess++
		default:
			report.TotalDataAccess++
		}
	}

	total := report.TotalEvents
	if total < 1 {
		total = 1
	}
	score := 100 * (1 - float64(report.TotalViolations)/float64(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	report.OverallComplianceScore = score
	return report, nil
}
