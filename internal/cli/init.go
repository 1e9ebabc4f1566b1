// Package cli provides common CLI initialization utilities shared by the
// commands under cmd/.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"misgastos/internal/amqp"
	"misgastos/internal/config"
	"misgastos/internal/log"
	"misgastos/internal/queue"
	"misgastos/internal/services"
	"misgastos/internal/sheets"
	"misgastos/internal/sheets/google"
	"misgastos/internal/sheets/memory"
	"misgastos/internal/storage"
)

// SetupLogger builds a text logger at the given level writing to w and
// installs it as the slog default.
func SetupLogger(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	logger := log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App holds the wired ledger components of one process.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Store  *storage.Store
	Ledger *services.LedgerService
	Events *amqp.Client // nil when AMQP is disabled
}

// InitApp wires connector, write queue, store, optional event publisher
// and ledger service, then initializes the store.
func InitApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	conn := storage.NewConnector(cfg.DBPath, storage.WithLogger(logger))
	writes := queue.New(cfg.WriteQueueSize, logger)
	store := storage.NewStore(conn, writes, logger)

	app := &App{Config: cfg, Logger: logger, Store: store}

	var events services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			// events are best-effort; the ledger works without them
			logger.LogError(ctx, "AMQP unavailable, change events disabled", err, log.OpStartup, log.ErrorTypeNetwork, nil)
		} else {
			app.Events = client
			events = client
		}
	}

	app.Ledger = services.NewLedgerService(store, events, logger)
	if err := app.Ledger.Init(ctx); err != nil {
		app.closeEvents()
		conn.Close()
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}
	return app, nil
}

// ReportWriter returns the Google Sheets writer when a spreadsheet is
// configured and a stdout table printer otherwise.
func (a *App) ReportWriter(ctx context.Context, out io.Writer) (sheets.ReportWriter, error) {
	if !a.Config.SheetsExportEnabled() {
		return memory.New(out), nil
	}
	return google.New(ctx, google.Config{
		SpreadsheetID:      a.Config.GoogleSpreadsheetID,
		ServiceAccountJSON: a.Config.GoogleServiceAccountJSON,
		ServiceAccountFile: a.Config.GoogleServiceAccountFile,
	}, a.Logger)
}

// Close drains pending writes within the configured shutdown timeout and
// releases every connection.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	err := a.Store.Close(ctx)
	a.closeEvents()
	if err != nil {
		a.Logger.LogError(ctx, "Shutdown incomplete", err, log.OpShutdown, log.ErrorTypeInternal, nil)
	}
	return err
}

func (a *App) closeEvents() {
	if a.Events != nil {
		a.Events.Close()
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func GracefulShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
