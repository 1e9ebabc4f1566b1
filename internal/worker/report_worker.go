// Package worker keeps exported reports in step with the ledger by
// re-exporting whenever a change event arrives.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"misgastos/internal/amqp"
	"misgastos/internal/core"
	"misgastos/internal/log"
	"misgastos/internal/services"
)

// EventSource delivers ledger change events to handler until ctx ends.
type EventSource interface {
	ConsumeWithRetry(ctx context.Context, handler func(*amqp.LedgerEvent) error) error
}

// Exporter writes the report sheets.
type Exporter interface {
	Export(ctx context.Context, req services.ExportRequest) (services.ExportSummary, error)
}

// ReportWorker re-exports reports after ledger changes. Events stamped
// before the start of the last successful export are already reflected in
// it and are skipped, so a burst of writes costs one export.
type ReportWorker struct {
	source   EventSource
	exporter Exporter
	periods  int
	logger   *log.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastExport time.Time
	exports    int
}

func NewReportWorker(source EventSource, exporter Exporter, periods int, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		source:   source,
		exporter: exporter,
		periods:  periods,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// Run exports once, then consumes events until ctx ends.
func (w *ReportWorker) Run(ctx context.Context) error {
	if err := w.StartupExport(ctx); err != nil {
		return err
	}
	err := w.source.ConsumeWithRetry(ctx, func(ev *amqp.LedgerEvent) error {
		return w.HandleEvent(ctx, ev)
	})
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Report worker stopped", "exports", w.Exports())
		return nil
	}
	return err
}

// StartupExport brings the reports up to date before any event arrives,
// covering changes made while no worker was running.
func (w *ReportWorker) StartupExport(ctx context.Context) error {
	if err := w.export(ctx); err != nil {
		return fmt.Errorf("startup export: %w", err)
	}
	return nil
}

// HandleEvent re-exports unless ev predates the last export. A returned
// error makes the consumer requeue the event.
func (w *ReportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.mu.Lock()
	stale := !w.lastExport.IsZero() && ev.Timestamp.Before(w.lastExport)
	w.mu.Unlock()
	if stale {
		w.logger.DebugContext(ctx, "Event already exported", log.FieldEvent, ev.Type, "id", ev.ID)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing ledger event", log.FieldEvent, ev.Type, "id", ev.ID)
	return w.export(ctx)
}

// Exports returns how many exports have succeeded.
func (w *ReportWorker) Exports() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exports
}

func (w *ReportWorker) export(ctx context.Context) error {
	started := w.now().UTC()
	summary, err := w.exporter.Export(ctx, services.ExportRequest{
		Month:   core.MonthKey(started),
		Periods: w.periods,
	})
	if err != nil {
		w.logger.LogError(ctx, "Report export failed", err, log.OpExport, log.ErrorTypeNetwork, nil)
		return err
	}

	w.mu.Lock()
	w.lastExport = started
	w.exports++
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Reports exported",
		"movements", summary.Movements,
		"months", summary.Months,
		"categories", summary.Breakdown)
	return nil
}
