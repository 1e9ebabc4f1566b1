package services

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"misgastos/internal/core"
	"misgastos/internal/log"
	"misgastos/internal/sheets"
)

// Sheet names written by Export.
const (
	MovementsSheet = "Movements"
	MonthlySheet   = "Monthly"
	BreakdownSheet = "Breakdown"
)

// ExportRequest selects what an export contains.
type ExportRequest struct {
	Month   string // YYYY-MM for the breakdown sheet
	Periods int    // months in the trend sheet, <= 0 for all
	Limit   int    // movements in the list sheet, <= 0 for all
}

// ExportSummary reports how many data rows each sheet received.
type ExportSummary struct {
	Movements int
	Months    int
	Breakdown int
}

// ExportService writes ledger reports through a sheets.ReportWriter.
type ExportService struct {
	ledger *LedgerService
	writer sheets.ReportWriter
	logger *log.Logger
}

func NewExportService(ledger *LedgerService, writer sheets.ReportWriter, logger *log.Logger) *ExportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportService{
		ledger: ledger,
		writer: writer,
		logger: logger.WithComponent(log.ComponentExport),
	}
}

// Export gathers the movement list, the monthly trend and the month's
// category breakdown, then writes one sheet for each.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if _, err := core.ParseMonth(req.Month); err != nil {
		return ExportSummary{}, core.NewDomainError("export", err)
	}

	var (
		movements []core.Movement
		trend     []core.PeriodTotal
		breakdown []core.CategoryTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		movements = s.ledger.ListMovements(gctx, req.Limit)
		return nil
	})
	g.Go(func() error {
		var err error
		trend, err = s.ledger.MonthlyExpenseTrend(gctx, max(req.Periods, 0))
		return err
	})
	g.Go(func() error {
		var err error
		breakdown, err = s.ledger.CategoryBreakdown(gctx, req.Month)
		return err
	})
	if err := g.Wait(); err != nil {
		return ExportSummary{}, err
	}

	out := []sheets.Sheet{
		MovementsSheetOf(movements),
		MonthlySheetOf(trend),
		BreakdownSheetOf(req.Month, breakdown),
	}
	for _, sheet := range out {
		if err := s.writer.WriteSheet(ctx, sheet); err != nil {
			s.logger.LogError(ctx, "Failed to write sheet", err, log.OpExport, log.ErrorTypeNetwork,
				log.LogFields{"sheet": sheet.Name})
			return ExportSummary{}, fmt.Errorf("write %s sheet: %w", sheet.Name, err)
		}
	}

	summary := ExportSummary{
		Movements: len(movements),
		Months:    len(trend),
		Breakdown: len(breakdown),
	}
	s.logger.InfoContext(ctx, "Report exported",
		log.FieldPeriod, req.Month,
		"movements", summary.Movements,
		"months", summary.Months,
		"categories", summary.Breakdown)
	return summary, nil
}

// MovementsSheetOf lays out movements newest first.
func MovementsSheetOf(movements []core.Movement) sheets.Sheet {
	rows := make([][]string, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.Date.Format(core.DateLayout),
			string(m.Kind),
			m.CategoryName,
			core.FormatAmount(m.Amount),
			m.Description,
		})
	}
	return sheets.Sheet{
		Name:   MovementsSheet,
		Header: []string{"ID", "Date", "Kind", "Category", "Amount", "Description"},
		Rows:   rows,
	}
}

func MonthlySheetOf(trend []core.PeriodTotal) sheets.Sheet {
	rows := make([][]string, 0, len(trend))
	for _, p := range trend {
		rows = append(rows, []string{p.Period, core.FormatAmount(p.Total)})
	}
	return sheets.Sheet{
		Name:   MonthlySheet,
		Header: []string{"Month", "Expenses"},
		Rows:   rows,
	}
}

// BreakdownSheetOf adds each category's share of the month and a closing
// total row.
func BreakdownSheetOf(month string, totals []core.CategoryTotal) sheets.Sheet {
	sum, shares := core.Shares(totals)
	rows := make([][]string, 0, len(shares)+1)
	for _, sh := range shares {
		rows = append(rows, []string{
			sh.CategoryName,
			core.FormatAmount(sh.Total),
			sh.Percent.StringFixed(1) + "%",
		})
	}
	rows = append(rows, []string{"Total", core.FormatAmount(sum), ""})
	return sheets.Sheet{
		Name:   BreakdownSheet,
		Header: []string{"Category (" + month + ")", "Expenses", "Share"},
		Rows:   rows,
	}
}
