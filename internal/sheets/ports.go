package sheets

import "context"

// Sheet is one named table of a report: a header row followed by data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Ports for outbound adapters.
type (
	// ReportWriter replaces the content of a named sheet.
	ReportWriter interface {
		WriteSheet(ctx context.Context, sheet Sheet) error
	}
)
