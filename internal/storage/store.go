package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"misgastos/internal/core"
	"misgastos/internal/log"
	"misgastos/internal/queue"
)

// Store is the ledger persistence layer. Writes go through the write queue
// one at a time; reads run directly against the shared handle and fall back
// to empty values when the database fails.
type Store struct {
	conn   *Connector
	writes *queue.WriteQueue
	logger *log.Logger
	now    func() time.Time

	initMu      sync.Mutex
	initialized bool
}

func NewStore(conn *Connector, writes *queue.WriteQueue, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		conn:   conn,
		writes: writes,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}
}

// Init prepares the database and starts the write queue. It is safe to call
// more than once.
func (s *Store) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	db, err := s.conn.Acquire(ctx)
	if err != nil {
		return err
	}

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return core.NewStorageError("set journal mode", err)
	}

	if err := RunMigrations(s.conn.Path()); err != nil {
		s.logger.LogError(ctx, "Failed to run migrations", err, log.OpMigrate, log.ErrorTypeDatabase,
			log.LogFields{log.FieldDBPath: s.conn.Path()})
		return core.NewStorageError("migrate", err)
	}

	seeded, err := seedCategories(ctx, New(db))
	if err != nil {
		s.logger.LogError(ctx, "Failed to seed categories", err, log.OpSeed, log.ErrorTypeDatabase,
			log.LogFields{"inserted": seeded})
		return core.NewStorageError("seed categories", err)
	}
	if seeded > 0 {
		s.logger.InfoContext(ctx, "Seeded default categories", "count", seeded)
	}

	if !s.writes.IsRunning() {
		if err := s.writes.Start(ctx); err != nil {
			return core.NewStorageError("start write queue", err)
		}
	}

	s.initialized = true
	s.logger.InfoContext(ctx, "Ledger store ready",
		log.FieldDBPath, s.conn.Path(),
		"journal_mode", mode)
	return nil
}

// Close stops the write queue after it drains, then closes the database.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if err := s.writes.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop write queue: %w", err))
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) queries(ctx context.Context) (*Queries, error) {
	db, err := s.conn.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// writeErr keeps domain errors as they are and marks everything else,
// including queue failures, as a storage error.
func writeErr(op string, err error) error {
	if err == nil || core.IsDomain(err) {
		return err
	}
	return core.NewStorageError(op, err)
}

// writeFailed classifies a failed write and logs it with its operation.
func (s *Store) writeFailed(ctx context.Context, op, logOp string, err error, fields log.LogFields) error {
	err = writeErr(op, err)
	errorType := log.ErrorTypeDatabase
	if core.IsDomain(err) {
		errorType = log.ErrorTypeDomain
	}
	s.logger.LogError(ctx, "Ledger write failed", err, logOp, errorType, fields)
	return err
}

func (s *Store) readFailed(ctx context.Context, msg string, err error, fields log.LogFields) {
	s.logger.LogError(ctx, msg, err, log.OpRead, log.ErrorTypeDatabase, fields)
}

func (s *Store) listFailed(ctx context.Context, msg string, err error) {
	s.logger.LogError(ctx, msg, err, log.OpList, log.ErrorTypeDatabase, nil)
}

// Writes

// AddMovement inserts a movement and returns its id. The input is stored
// as given; validation belongs to the caller.
func (s *Store) AddMovement(ctx context.Context, in core.MovementInput) (int64, error) {
	id, err := queue.Submit(ctx, s.writes, func(ctx context.Context) (int64, error) {
		q, err := s.queries(ctx)
		if err != nil {
			return 0, err
		}
		return q.CreateMovement(ctx, CreateMovementParams{
			CategoryID:  in.CategoryID,
			Amount:      in.Amount.InexactFloat64(),
			Kind:        string(in.Kind),
			Date:        core.FormatTimestamp(in.Date),
			Description: in.Description,
		})
	})
	if err != nil {
		return 0, s.writeFailed(ctx, "add movement", log.OpCreate, err, movementFields(0, in))
	}
	s.logger.InfoContext(ctx, "Movement saved", movementFields(id, in).ToSlice()...)
	return id, nil
}

// EditMovement replaces every mutable field of movement id.
func (s *Store) EditMovement(ctx context.Context, id int64, in core.MovementInput) error {
	err := queue.Exec(ctx, s.writes, func(ctx context.Context) error {
		q, err := s.queries(ctx)
		if err != nil {
			return err
		}
		n, err := q.UpdateMovement(ctx, UpdateMovementParams{
			ID:          id,
			CategoryID:  in.CategoryID,
			Amount:      in.Amount.InexactFloat64(),
			Kind:        string(in.Kind),
			Date:        core.FormatTimestamp(in.Date),
			Description: in.Description,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return core.NewDomainError("edit movement", core.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return s.writeFailed(ctx, "edit movement", log.OpUpdate, err, movementFields(id, in))
	}
	s.logger.InfoContext(ctx, "Movement updated", movementFields(id, in).ToSlice()...)
	return nil
}

func (s *Store) DeleteMovement(ctx context.Context, id int64) error {
	err := queue.Exec(ctx, s.writes, func(ctx context.Context) error {
		q, err := s.queries(ctx)
		if err != nil {
			return err
		}
		n, err := q.DeleteMovement(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return core.NewDomainError("delete movement", core.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return s.writeFailed(ctx, "delete movement", log.OpDelete, err, log.LogFields{log.FieldMovementID: id})
	}
	s.logger.InfoContext(ctx, "Movement deleted", log.FieldMovementID, id)
	return nil
}

func (s *Store) AddCategory(ctx context.Context, name string, kind core.Kind) (int64, error) {
	id, err := queue.Submit(ctx, s.writes, func(ctx context.Context) (int64, error) {
		q, err := s.queries(ctx)
		if err != nil {
			return 0, err
		}
		return q.CreateCategory(ctx, name, string(kind))
	})
	if err != nil {
		return 0, s.writeFailed(ctx, "add category", log.OpCreate, err, log.NewFields().WithCategory(0, name, string(kind)))
	}
	s.logger.InfoContext(ctx, "Category created", log.NewFields().WithCategory(id, name, string(kind)).ToSlice()...)
	return id, nil
}

// DeleteCategory removes a category that no movement references. The
// reference check and the delete run in the same queued job, so no other
// write of this process can slip between them.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	err := queue.Exec(ctx, s.writes, func(ctx context.Context) error {
		q, err := s.queries(ctx)
		if err != nil {
			return err
		}
		refs, err := q.CountMovementsByCategory(ctx, id)
		if err != nil {
			return fmt.Errorf("count movements: %w", err)
		}
		if refs > 0 {
			return core.NewDomainError("delete category", fmt.Errorf("%w (%d movements)", core.ErrCategoryInUse, refs))
		}
		n, err := q.DeleteCategory(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return core.NewDomainError("delete category", core.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return s.writeFailed(ctx, "delete category", log.OpDelete, err, log.LogFields{log.FieldCategoryID: id})
	}
	s.logger.InfoContext(ctx, "Category deleted", log.FieldCategoryID, id)
	return nil
}

// SetOpeningBalance inserts a configuration row stamped with the current
// time.
func (s *Store) SetOpeningBalance(ctx context.Context, amount decimal.Decimal) error {
	createdAt := core.FormatTimestamp(s.now())
	err := queue.Exec(ctx, s.writes, func(ctx context.Context) error {
		q, err := s.queries(ctx)
		if err != nil {
			return err
		}
		_, err = q.CreateConfiguration(ctx, amount.InexactFloat64(), createdAt)
		return err
	})
	if err != nil {
		return s.writeFailed(ctx, "set opening balance", log.OpCreate, err, log.LogFields{log.FieldAmount: core.FormatAmount(amount)})
	}
	s.logger.InfoContext(ctx, "Opening balance set", log.FieldAmount, core.FormatAmount(amount))
	return nil
}

// Reads

// CheckOpeningBalance reports the stored opening balance, or false when
// none is set or it cannot be read.
func (s *Store) CheckOpeningBalance(ctx context.Context) (decimal.Decimal, bool) {
	ob, ok, err := s.openingBalance(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to read opening balance", err, nil)
		return decimal.Zero, false
	}
	return ob.Amount, ok
}

// OpeningBalance returns the stored opening balance or zero.
func (s *Store) OpeningBalance(ctx context.Context) decimal.Decimal {
	amount, _ := s.CheckOpeningBalance(ctx)
	return amount
}

// OpeningBalanceRecord returns the full configuration row, or nil.
func (s *Store) OpeningBalanceRecord(ctx context.Context) *core.OpeningBalance {
	ob, ok, err := s.openingBalance(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to read opening balance", err, nil)
		return nil
	}
	if !ok {
		return nil
	}
	return &ob
}

func (s *Store) openingBalance(ctx context.Context) (core.OpeningBalance, bool, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return core.OpeningBalance{}, false, err
	}
	row, err := q.GetOpeningBalance(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.OpeningBalance{}, false, nil
	}
	if err != nil {
		return core.OpeningBalance{}, false, core.NewStorageError("get opening balance", err)
	}
	createdAt, _ := core.ParseTimestamp(row.CreatedAt)
	return core.OpeningBalance{
		ID:        row.ID,
		Amount:    decimal.NewFromFloat(row.OpeningBalance),
		CreatedAt: createdAt,
	}, true, nil
}

// CurrentBalance returns opening + income - expense, or zero on failure.
func (s *Store) CurrentBalance(ctx context.Context) decimal.Decimal {
	stats, err := s.stats(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to compute balance", err, nil)
		return decimal.Zero
	}
	return stats.CurrentBalance
}

// Statistics returns the ledger totals, or an all-zero Stats on failure.
func (s *Store) Statistics(ctx context.Context) core.Stats {
	stats, err := s.stats(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to compute statistics", err, nil)
		return zeroStats()
	}
	return stats
}

func zeroStats() core.Stats {
	return core.Stats{
		TotalIncome:    decimal.Zero,
		TotalExpense:   decimal.Zero,
		OpeningBalance: decimal.Zero,
		CurrentBalance: decimal.Zero,
	}
}

func (s *Store) stats(ctx context.Context) (core.Stats, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return core.Stats{}, err
	}

	var (
		income, expense sql.NullFloat64
		opening         decimal.Decimal
		count           int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = q.SumAmountByKind(gctx, string(core.Income))
		return err
	})
	g.Go(func() error {
		var err error
		expense, err = q.SumAmountByKind(gctx, string(core.Expense))
		return err
	})
	g.Go(func() error {
		ob, _, err := s.openingBalance(gctx)
		opening = ob.Amount
		return err
	})
	g.Go(func() error {
		var err error
		count, err = q.CountMovements(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Stats{}, core.NewStorageError("statistics", err)
	}

	totalIncome := sumToDecimal(income)
	totalExpense := sumToDecimal(expense)
	return core.Stats{
		TotalIncome:    totalIncome,
		TotalExpense:   totalExpense,
		OpeningBalance: opening,
		CurrentBalance: core.Balance(opening, totalIncome, totalExpense).Round(2),
		MovementCount:  count,
	}, nil
}

// ExpenseTotalInRange sums expenses dated within [start, end], both
// YYYY-MM-DD and inclusive.
func (s *Store) ExpenseTotalInRange(ctx context.Context, start, end string) decimal.Decimal {
	q, err := s.queries(ctx)
	if err == nil {
		var total sql.NullFloat64
		total, err = q.SumExpensesInRange(ctx, start, end)
		if err == nil {
			return sumToDecimal(total)
		}
	}
	s.readFailed(ctx, "Failed to sum expenses in range", err, log.LogFields{log.FieldPeriod: start + ".." + end})
	return decimal.Zero
}

// MonthlyExpenseTrend returns expense totals per YYYY-MM, newest first,
// capped to n periods. n <= 0 returns every period.
func (s *Store) MonthlyExpenseTrend(ctx context.Context, n int) []core.PeriodTotal {
	return s.trend(ctx, "monthly", n, (*Queries).ExpenseTotalsByMonth)
}

// WeeklyExpenseTrend returns expense totals per YYYY-WW (Monday-based week
// of year), newest first, capped to n periods.
func (s *Store) WeeklyExpenseTrend(ctx context.Context, n int) []core.PeriodTotal {
	return s.trend(ctx, "weekly", n, (*Queries).ExpenseTotalsByWeek)
}

func (s *Store) trend(ctx context.Context, name string, n int, query func(*Queries, context.Context, int64) ([]PeriodTotal, error)) []core.PeriodTotal {
	q, err := s.queries(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to load "+name+" trend", err, nil)
		return []core.PeriodTotal{}
	}
	rows, err := query(q, ctx, limitArg(n))
	if err != nil {
		s.readFailed(ctx, "Failed to load "+name+" trend", err, nil)
		return []core.PeriodTotal{}
	}
	out := make([]core.PeriodTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.PeriodTotal{Period: r.Period, Total: roundTotal(r.Total)})
	}
	return out
}

// CategoryBreakdown returns expense totals per category for a YYYY-MM
// month, largest first.
func (s *Store) CategoryBreakdown(ctx context.Context, month string) []core.CategoryTotal {
	start, end, err := core.MonthRange(month)
	if err != nil {
		s.logger.WarnContext(ctx, "Invalid breakdown month", log.FieldPeriod, month)
		return []core.CategoryTotal{}
	}
	q, err := s.queries(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to load category breakdown", err, log.LogFields{log.FieldPeriod: month})
		return []core.CategoryTotal{}
	}
	rows, err := q.ExpenseTotalsByCategory(ctx, start, end)
	if err != nil {
		s.readFailed(ctx, "Failed to load category breakdown", err, log.LogFields{log.FieldPeriod: month})
		return []core.CategoryTotal{}
	}
	out := make([]core.CategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.CategoryTotal{
			CategoryID:   r.CategoryID,
			CategoryName: r.CategoryName,
			Total:        roundTotal(r.Total),
		})
	}
	return out
}

// ListCategories returns categories ordered by name, optionally only those
// of one kind.
func (s *Store) ListCategories(ctx context.Context, kind *core.Kind) []core.Category {
	q, err := s.queries(ctx)
	if err != nil {
		s.listFailed(ctx, "Failed to list categories", err)
		return []core.Category{}
	}
	var rows []Category
	if kind != nil {
		rows, err = q.ListCategoriesByKind(ctx, string(*kind))
	} else {
		rows, err = q.ListCategories(ctx)
	}
	if err != nil {
		s.listFailed(ctx, "Failed to list categories", err)
		return []core.Category{}
	}
	out := make([]core.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Category{ID: r.ID, Name: r.Name, Kind: core.Kind(r.Kind)})
	}
	return out
}

// ListMovements returns movements newest first, at most limit of them when
// limit > 0.
func (s *Store) ListMovements(ctx context.Context, limit int) []core.Movement {
	q, err := s.queries(ctx)
	if err != nil {
		s.listFailed(ctx, "Failed to list movements", err)
		return []core.Movement{}
	}
	rows, err := q.ListMovements(ctx, limitArg(limit))
	if err != nil {
		s.listFailed(ctx, "Failed to list movements", err)
		return []core.Movement{}
	}
	out := make([]core.Movement, 0, len(rows))
	for _, r := range rows {
		out = append(out, toMovement(r))
	}
	return out
}

// GetMovement returns movement id with its category name, or nil when it
// does not exist or cannot be read.
func (s *Store) GetMovement(ctx context.Context, id int64) *core.Movement {
	q, err := s.queries(ctx)
	if err != nil {
		s.readFailed(ctx, "Failed to get movement", err, log.LogFields{log.FieldMovementID: id})
		return nil
	}
	row, err := q.GetMovement(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.readFailed(ctx, "Failed to get movement", err, log.LogFields{log.FieldMovementID: id})
		return nil
	}
	m := toMovement(row)
	return &m
}

func toMovement(r Movement) core.Movement {
	// an unparseable date is surfaced as the zero time
	date, _ := core.ParseTimestamp(r.Date)
	return core.Movement{
		ID:           r.ID,
		CategoryID:   r.CategoryID,
		Amount:       decimal.NewFromFloat(r.Amount),
		Kind:         core.Kind(r.Kind),
		Date:         date,
		Description:  r.Description.String,
		CategoryName: r.CategoryName,
	}
}

func movementFields(id int64, in core.MovementInput) log.LogFields {
	return log.NewFields().WithMovement(id, in.CategoryID,
		core.FormatAmount(in.Amount), string(in.Kind), core.FormatTimestamp(in.Date))
}

// limitArg maps "no limit" to SQLite's negative LIMIT.
func limitArg(n int) int64 {
	if n <= 0 {
		return -1
	}
	return int64(n)
}

// sumToDecimal treats a NULL SUM as zero.
func sumToDecimal(v sql.NullFloat64) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return roundTotal(v.Float64)
}

// Sums of REAL columns carry binary float noise.
func roundTotal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
