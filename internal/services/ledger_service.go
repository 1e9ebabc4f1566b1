// Package services provides the ledger boundary used by front ends.
//
// LedgerService validates user input, forwards it to the store and, when a
// publisher is configured, announces each successful write. ExportService
// turns the store's reports into sheets.
package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"misgastos/internal/amqp"
	"misgastos/internal/core"
	"misgastos/internal/log"
	"misgastos/internal/storage"
)

// EventPublisher announces ledger changes. Implementations may fail; a
// failed publish never fails the write it reports.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService orchestrates ledger operations across the store and the
// optional event publisher.
type LedgerService struct {
	store  *storage.Store
	events EventPublisher
	logger *log.Logger
}

// NewLedgerService wires the service. events may be nil.
func NewLedgerService(store *storage.Store, events EventPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerService{
		store:  store,
		events: events,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// Init prepares the store. It must run before any other operation.
func (s *LedgerService) Init(ctx context.Context) error {
	return s.store.Init(ctx)
}

// CheckOpeningBalance returns the opening balance and whether one is set.
func (s *LedgerService) CheckOpeningBalance(ctx context.Context) (decimal.Decimal, bool) {
	return s.store.CheckOpeningBalance(ctx)
}

// SetOpeningBalance records the opening balance. It can be set only once.
func (s *LedgerService) SetOpeningBalance(ctx context.Context, amount decimal.Decimal) error {
	const op = "set opening balance"
	if _, ok := s.store.CheckOpeningBalance(ctx); ok {
		return s.rejected(ctx, op, core.ErrOpeningBalanceSet)
	}
	if err := s.store.SetOpeningBalance(ctx, amount.Round(2)); err != nil {
		return err
	}
	s.publish(ctx, amqp.OpeningBalanceSet, 1)
	return nil
}

func (s *LedgerService) AddMovement(ctx context.Context, in core.MovementInput) (int64, error) {
	const op = "add movement"
	in, err := normalize(in)
	if err != nil {
		return 0, s.rejected(ctx, op, err)
	}
	id, err := s.store.AddMovement(ctx, in)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, amqp.MovementCreated, id)
	return id, nil
}

func (s *LedgerService) EditMovement(ctx context.Context, id int64, in core.MovementInput) error {
	const op = "edit movement"
	if id <= 0 {
		return s.rejected(ctx, op, core.ErrNotFound)
	}
	in, err := normalize(in)
	if err != nil {
		return s.rejected(ctx, op, err)
	}
	if err := s.store.EditMovement(ctx, id, in); err != nil {
		return err
	}
	s.publish(ctx, amqp.MovementUpdated, id)
	return nil
}

func (s *LedgerService) DeleteMovement(ctx context.Context, id int64) error {
	if id <= 0 {
		return s.rejected(ctx, "delete movement", core.ErrNotFound)
	}
	if err := s.store.DeleteMovement(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.MovementDeleted, id)
	return nil
}

func (s *LedgerService) AddCategory(ctx context.Context, name string, kind core.Kind) (int64, error) {
	const op = "add category"
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, s.rejected(ctx, op, core.ErrEmptyName)
	}
	if err := kind.Validate(); err != nil {
		return 0, s.rejected(ctx, op, err)
	}
	id, err := s.store.AddCategory(ctx, name, kind)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, amqp.CategoryCreated, id)
	return id, nil
}

// DeleteCategory fails with core.ErrCategoryInUse while movements still
// reference the category.
func (s *LedgerService) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return s.rejected(ctx, "delete category", core.ErrNotFound)
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.CategoryDeleted, id)
	return nil
}

// Reads

func (s *LedgerService) OpeningBalance(ctx context.Context) decimal.Decimal {
	return s.store.OpeningBalance(ctx)
}

func (s *LedgerService) CurrentBalance(ctx context.Context) decimal.Decimal {
	return s.store.CurrentBalance(ctx)
}

// ListCategories lists every category when kind is nil.
func (s *LedgerService) ListCategories(ctx context.Context, kind *core.Kind) []core.Category {
	return s.store.ListCategories(ctx, kind)
}

// ListMovements returns the newest movements; limit <= 0 means all.
func (s *LedgerService) ListMovements(ctx context.Context, limit int) []core.Movement {
	return s.store.ListMovements(ctx, limit)
}

// GetMovement returns nil when the movement does not exist.
func (s *LedgerService) GetMovement(ctx context.Context, id int64) *core.Movement {
	return s.store.GetMovement(ctx, id)
}

func (s *LedgerService) Statistics(ctx context.Context) core.Stats {
	return s.store.Statistics(ctx)
}

// ExpenseTotalInRange sums expenses between two YYYY-MM-DD dates,
// inclusive.
func (s *LedgerService) ExpenseTotalInRange(ctx context.Context, start, end string) (decimal.Decimal, error) {
	start, end, err := core.ValidateRange(start, end)
	if err != nil {
		return decimal.Zero, s.rejected(ctx, "expense total in range", err)
	}
	return s.store.ExpenseTotalInRange(ctx, start, end), nil
}

func (s *LedgerService) MonthlyExpenseTrend(ctx context.Context, periods int) ([]core.PeriodTotal, error) {
	if periods < 0 {
		return nil, s.rejected(ctx, "monthly expense trend", core.ErrInvalidPeriod)
	}
	return s.store.MonthlyExpenseTrend(ctx, periods), nil
}

func (s *LedgerService) WeeklyExpenseTrend(ctx context.Context, periods int) ([]core.PeriodTotal, error) {
	if periods < 0 {
		return nil, s.rejected(ctx, "weekly expense trend", core.ErrInvalidPeriod)
	}
	return s.store.WeeklyExpenseTrend(ctx, periods), nil
}

// CategoryBreakdown returns per-category expense totals for a YYYY-MM
// month, largest first.
func (s *LedgerService) CategoryBreakdown(ctx context.Context, month string) ([]core.CategoryTotal, error) {
	month = strings.TrimSpace(month)
	if _, err := core.ParseMonth(month); err != nil {
		return nil, s.rejected(ctx, "category breakdown", err)
	}
	return s.store.CategoryBreakdown(ctx, month), nil
}

// normalize validates in and rounds the amount to cents. The description
// is stored as given.
func normalize(in core.MovementInput) (core.MovementInput, error) {
	if err := in.Validate(); err != nil {
		return in, err
	}
	in.Amount = in.Amount.Round(2)
	if err := core.ValidateAmount(in.Amount); err != nil {
		return in, err
	}
	return in, nil
}

func (s *LedgerService) rejected(ctx context.Context, op string, err error) error {
	s.logger.WarnContext(ctx, "Rejected ledger operation",
		log.FieldOperation, op,
		log.FieldError, err,
		log.FieldErrorType, log.ErrorTypeValidation)
	return core.NewDomainError(op, err)
}

func (s *LedgerService) publish(ctx context.Context, typ amqp.EventType, id int64) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, amqp.NewLedgerEvent(typ, id)); err != nil {
		s.logger.LogError(ctx, "Failed to publish ledger event", err, log.OpPublish, log.ErrorTypeNetwork,
			log.LogFields{log.FieldEvent: string(typ), "id": id})
	}
}
