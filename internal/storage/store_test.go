package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"misgastos/internal/core"
	"misgastos/internal/log"
	"misgastos/internal/queue"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "ledger.db"))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s := NewStore(NewConnector(path), queue.New(16, nil), nil)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ts(s string) time.Time {
	t, err := core.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

// categoryID looks up a seeded category by name.
func categoryID(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	for _, c := range s.ListCategories(context.Background(), nil) {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

func addMovement(t *testing.T, s *Store, category int64, amount string, kind core.Kind, date string) int64 {
	t.Helper()
	id, err := s.AddMovement(context.Background(), core.MovementInput{
		CategoryID: category,
		Amount:     dec(amount),
		Kind:       kind,
		Date:       ts(date),
	})
	if err != nil {
		t.Fatalf("AddMovement(%s %s %s): %v", kind, amount, date, err)
	}
	return id
}

func TestStore_InitSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	if got := len(s.ListCategories(ctx, nil)); got != len(DefaultCategories) {
		t.Fatalf("categories after Init = %d, want %d", got, len(DefaultCategories))
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	income := core.Income
	names := []string{}
	for _, c := range s.ListCategories(ctx, &income) {
		if c.Kind != core.Income {
			t.Errorf("category %q has kind %s", c.Name, c.Kind)
		}
		names = append(names, c.Name)
	}
	want := []string{"Freelance", "Investments", "Other Income", "Salary", "Sale"}
	if len(names) != len(want) {
		t.Fatalf("income categories = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("income categories = %v, want %v", names, want)
		}
	}

	expense := core.Expense
	if got := len(s.ListCategories(ctx, &expense)); got != 8 {
		t.Errorf("expense categories = %d, want 8", got)
	}

	// A second process on the same file must not seed again.
	s.Close(ctx)
	s2 := openTestStore(t, path)
	if got := len(s2.ListCategories(ctx, nil)); got != len(DefaultCategories) {
		t.Errorf("categories after reopen = %d, want %d", got, len(DefaultCategories))
	}
}

func TestStore_MovementRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")

	in := core.MovementInput{
		CategoryID:  food,
		Amount:      dec("123.45"),
		Kind:        core.Expense,
		Date:        ts("2025-02-14T19:30:15.250Z"),
		Description: "Dinner",
	}
	id, err := s.AddMovement(ctx, in)
	if err != nil {
		t.Fatalf("AddMovement: %v", err)
	}

	got := s.GetMovement(ctx, id)
	if got == nil {
		t.Fatal("GetMovement returned nil")
	}
	if got.ID != id || got.CategoryID != in.CategoryID || got.Kind != in.Kind || got.Description != in.Description {
		t.Errorf("GetMovement = %+v, want fields of %+v", got, in)
	}
	if !got.Amount.Equal(in.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, in.Amount)
	}
	if !got.Date.Equal(in.Date) {
		t.Errorf("date = %s, want %s", got.Date, in.Date)
	}
	if got.CategoryName != "Food" {
		t.Errorf("category name = %q, want Food", got.CategoryName)
	}

	if s.GetMovement(ctx, id+100) != nil {
		t.Error("GetMovement of a missing id should return nil")
	}
}

func TestStore_EditAndDeleteMovement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")
	salary := categoryID(t, s, "Salary")

	id := addMovement(t, s, food, "10", core.Expense, "2025-01-10T10:00:00.000Z")

	edit := core.MovementInput{
		CategoryID:  salary,
		Amount:      dec("99.90"),
		Kind:        core.Income,
		Date:        ts("2025-01-11T08:00:00.000Z"),
		Description: "fixed",
	}
	if err := s.EditMovement(ctx, id, edit); err != nil {
		t.Fatalf("EditMovement: %v", err)
	}
	got := s.GetMovement(ctx, id)
	if got == nil || got.CategoryName != "Salary" || got.Kind != core.Income || !got.Amount.Equal(edit.Amount) ||
		!got.Date.Equal(edit.Date) || got.Description != "fixed" {
		t.Fatalf("edited movement = %+v", got)
	}

	if err := s.DeleteMovement(ctx, id); err != nil {
		t.Fatalf("DeleteMovement: %v", err)
	}
	if s.GetMovement(ctx, id) != nil {
		t.Fatal("movement still present after delete")
	}

	tests := []struct {
		name string
		err  error
	}{
		{"edit missing", s.EditMovement(ctx, id, edit)},
		{"delete missing", s.DeleteMovement(ctx, id)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, core.ErrNotFound) || !core.IsDomain(tt.err) {
				t.Errorf("error = %v, want domain ErrNotFound", tt.err)
			}
		})
	}
}

func TestStore_BalanceIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.CheckOpeningBalance(ctx); ok {
		t.Fatal("opening balance should not be set on a fresh store")
	}
	if err := s.SetOpeningBalance(ctx, dec("1000.00")); err != nil {
		t.Fatalf("SetOpeningBalance: %v", err)
	}
	addMovement(t, s, categoryID(t, s, "Salary"), "500.00", core.Income, "2025-01-05T12:00:00.000Z")
	addMovement(t, s, categoryID(t, s, "Food"), "200.00", core.Expense, "2025-01-06T12:00:00.000Z")

	if got := s.CurrentBalance(ctx); !got.Equal(dec("1300")) {
		t.Errorf("CurrentBalance = %s, want 1300", got)
	}

	stats := s.Statistics(ctx)
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"income", stats.TotalIncome, "500"},
		{"expense", stats.TotalExpense, "200"},
		{"opening", stats.OpeningBalance, "1000"},
		{"current", stats.CurrentBalance, "1300"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if stats.MovementCount != 2 {
		t.Errorf("movement count = %d, want 2", stats.MovementCount)
	}

	amount, ok := s.CheckOpeningBalance(ctx)
	if !ok || !amount.Equal(dec("1000")) {
		t.Errorf("CheckOpeningBalance = %s, %v", amount, ok)
	}
	if rec := s.OpeningBalanceRecord(ctx); rec == nil || rec.ID != 1 || rec.CreatedAt.IsZero() {
		t.Errorf("OpeningBalanceRecord = %+v", rec)
	}
}

func TestStore_BalanceWithoutMovements(t *testing.T) {
	s := newTestStore(t)
	stats := s.Statistics(context.Background())
	if !stats.CurrentBalance.IsZero() || !stats.TotalIncome.IsZero() || stats.MovementCount != 0 {
		t.Errorf("empty store stats = %+v", stats)
	}
}

func TestStore_DeleteCategoryGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used, err := s.AddCategory(ctx, "Pets", core.Expense)
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	unused, err := s.AddCategory(ctx, "Gifts", core.Expense)
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	mid := addMovement(t, s, used, "15", core.Expense, "2025-01-01T09:00:00.000Z")

	err = s.DeleteCategory(ctx, used)
	if !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("DeleteCategory(used) = %v, want ErrCategoryInUse", err)
	}
	if !core.IsDomain(err) || core.IsStorage(err) {
		t.Errorf("guard error should be a domain error, got %T", err)
	}
	if s.GetMovement(ctx, mid) == nil {
		t.Error("movement removed by refused delete")
	}
	found := false
	for _, c := range s.ListCategories(ctx, nil) {
		if c.ID == used {
			found = true
		}
	}
	if !found {
		t.Error("category removed by refused delete")
	}

	if err := s.DeleteCategory(ctx, unused); err != nil {
		t.Fatalf("DeleteCategory(unused): %v", err)
	}
	for _, c := range s.ListCategories(ctx, nil) {
		if c.ID == unused {
			t.Error("unused category still listed")
		}
	}
	if err := s.DeleteCategory(ctx, unused); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestStore_CategoryBreakdownMonthBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")
	housing := categoryID(t, s, "Housing")
	salary := categoryID(t, s, "Salary")

	addMovement(t, s, food, "1.00", core.Expense, "2025-01-31T23:59:59.999Z")
	addMovement(t, s, food, "10.00", core.Expense, "2025-02-01T00:00:00.000Z")
	addMovement(t, s, food, "20.00", core.Expense, "2025-02-28T23:59:59.999Z")
	addMovement(t, s, housing, "300.00", core.Expense, "2025-02-15T12:00:00.000Z")
	addMovement(t, s, food, "1000.00", core.Expense, "2025-03-01T00:00:00.000Z")
	addMovement(t, s, salary, "5000.00", core.Income, "2025-02-10T12:00:00.000Z")

	got := s.CategoryBreakdown(ctx, "2025-02")
	want := []struct {
		name  string
		total string
	}{
		{"Housing", "300"},
		{"Food", "30"},
	}
	if len(got) != len(want) {
		t.Fatalf("breakdown = %+v, want %d rows", got, len(want))
	}
	for i, w := range want {
		if got[i].CategoryName != w.name || !got[i].Total.Equal(dec(w.total)) {
			t.Errorf("row %d = %s %s, want %s %s", i, got[i].CategoryName, got[i].Total, w.name, w.total)
		}
	}

	if total := s.ExpenseTotalInRange(ctx, "2025-02-01", "2025-02-28"); !total.Equal(dec("330")) {
		t.Errorf("ExpenseTotalInRange(Feb) = %s, want 330", total)
	}
	if total := s.ExpenseTotalInRange(ctx, "2025-02-28", "2025-03-01"); !total.Equal(dec("1020")) {
		t.Errorf("ExpenseTotalInRange(28 Feb..1 Mar) = %s, want 1020", total)
	}

	if rows := s.CategoryBreakdown(ctx, "2025-13"); len(rows) != 0 {
		t.Errorf("invalid month breakdown = %+v, want empty", rows)
	}
}

func TestStore_Trends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")

	addMovement(t, s, food, "10", core.Expense, "2025-01-06T10:00:00.000Z") // Monday, week 01
	addMovement(t, s, food, "5", core.Expense, "2025-01-08T10:00:00.000Z")  // week 01
	addMovement(t, s, food, "7", core.Expense, "2025-01-13T10:00:00.000Z")  // week 02
	addMovement(t, s, food, "40", core.Expense, "2025-02-03T10:00:00.000Z") // week 05
	addMovement(t, s, food, "2", core.Expense, "2024-12-31T10:00:00.000Z")  // 2024 week 53
	addMovement(t, s, categoryID(t, s, "Salary"), "900", core.Income, "2025-03-01T10:00:00.000Z")

	t.Run("monthly", func(t *testing.T) {
		got := s.MonthlyExpenseTrend(ctx, 12)
		want := []core.PeriodTotal{
			{Period: "2025-02", Total: dec("40")},
			{Period: "2025-01", Total: dec("22")},
			{Period: "2024-12", Total: dec("2")},
		}
		assertPeriods(t, got, want)

		assertPeriods(t, s.MonthlyExpenseTrend(ctx, 1), want[:1])
	})

	t.Run("weekly", func(t *testing.T) {
		got := s.WeeklyExpenseTrend(ctx, 3)
		want := []core.PeriodTotal{
			{Period: "2025-05", Total: dec("40")},
			{Period: "2025-02", Total: dec("7")},
			{Period: "2025-01", Total: dec("15")},
		}
		assertPeriods(t, got, want)

		if all := s.WeeklyExpenseTrend(ctx, 0); len(all) != 4 {
			t.Errorf("uncapped weekly trend has %d periods, want 4", len(all))
		}
	})
}

func assertPeriods(t *testing.T, got, want []core.PeriodTotal) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("periods = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Period != want[i].Period || !got[i].Total.Equal(want[i].Total) {
			t.Errorf("period %d = %s %s, want %s %s", i, got[i].Period, got[i].Total, want[i].Period, want[i].Total)
		}
	}
}

func TestStore_ListMovementsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")

	a := addMovement(t, s, food, "1", core.Expense, "2025-01-01T10:00:00.000Z")
	b := addMovement(t, s, food, "2", core.Expense, "2025-01-03T10:00:00.000Z")
	c := addMovement(t, s, food, "3", core.Expense, "2025-01-01T10:00:00.000Z")

	got := s.ListMovements(ctx, 0)
	wantIDs := []int64{b, c, a}
	if len(got) != len(wantIDs) {
		t.Fatalf("ListMovements returned %d rows", len(got))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("order = %v, want ids %v", got, wantIDs)
		}
	}
	if got[0].Description != "" {
		t.Errorf("description default = %q, want empty", got[0].Description)
	}

	if limited := s.ListMovements(ctx, 2); len(limited) != 2 || limited[0].ID != b {
		t.Errorf("ListMovements(2) = %+v", limited)
	}
}

func TestStore_ReadsDegradeOnStorageFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetOpeningBalance(ctx, dec("50")); err != nil {
		t.Fatalf("SetOpeningBalance: %v", err)
	}
	id := addMovement(t, s, categoryID(t, s, "Food"), "20", core.Expense, "2025-01-01T10:00:00.000Z")

	t.Run("missing table", func(t *testing.T) {
		db, err := s.conn.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE movements RENAME TO movements_gone"); err != nil {
			t.Fatalf("rename: %v", err)
		}
		defer db.ExecContext(ctx, "ALTER TABLE movements_gone RENAME TO movements")

		stats := s.Statistics(ctx)
		if !stats.TotalExpense.IsZero() || !stats.OpeningBalance.IsZero() || !stats.CurrentBalance.IsZero() || stats.MovementCount != 0 {
			t.Errorf("Statistics = %+v, want all zero", stats)
		}
		if got := s.ListMovements(ctx, 10); got == nil || len(got) != 0 {
			t.Errorf("ListMovements = %v, want empty non-nil slice", got)
		}
		if s.GetMovement(ctx, id) != nil {
			t.Error("GetMovement should return nil")
		}
	})

	t.Run("closed database", func(t *testing.T) {
		if err := s.conn.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if stats := s.Statistics(ctx); !stats.CurrentBalance.IsZero() || stats.MovementCount != 0 {
			t.Errorf("Statistics = %+v, want all zero", stats)
		}
		if b := s.CurrentBalance(ctx); !b.IsZero() {
			t.Errorf("CurrentBalance = %s, want 0", b)
		}
		if _, ok := s.CheckOpeningBalance(ctx); ok {
			t.Error("CheckOpeningBalance should report not set")
		}
		if got := s.ListCategories(ctx, nil); len(got) != 0 {
			t.Errorf("ListCategories = %v, want empty", got)
		}
		if got := s.MonthlyExpenseTrend(ctx, 3); len(got) != 0 {
			t.Errorf("MonthlyExpenseTrend = %v, want empty", got)
		}
		if got := s.ExpenseTotalInRange(ctx, "2025-01-01", "2025-01-31"); !got.IsZero() {
			t.Errorf("ExpenseTotalInRange = %s, want 0", got)
		}

		// writes propagate the failure instead
		_, err := s.AddMovement(ctx, core.MovementInput{
			CategoryID: 1, Amount: dec("1"), Kind: core.Expense, Date: time.Now(),
		})
		if !core.IsStorage(err) || !errors.Is(err, ErrClosed) {
			t.Errorf("AddMovement on closed store = %v, want StorageError(ErrClosed)", err)
		}
	})
}

func TestStore_WriteVisibleToLaterRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	food := categoryID(t, s, "Food")

	for i := 1; i <= 5; i++ {
		id := addMovement(t, s, food, "1", core.Expense, "2025-01-01T10:00:00.000Z")
		if s.GetMovement(ctx, id) == nil {
			t.Fatalf("movement %d not visible after its write returned", id)
		}
		if got := s.Statistics(ctx).MovementCount; got != int64(i) {
			t.Fatalf("count after %d writes = %d", i, got)
		}
	}
}

func TestStore_WriteFailuresAreLogged(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer
	s.logger = log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)}).WithComponent(log.ComponentStorage)
	ctx := context.Background()

	tests := []struct {
		name      string
		write     func() error
		operation string
		errorType string
	}{
		{"missing movement delete", func() error { return s.DeleteMovement(ctx, 999) }, log.OpDelete, log.ErrorTypeDomain},
		{"missing movement edit", func() error {
			return s.EditMovement(ctx, 999, core.MovementInput{
				CategoryID: 1, Amount: dec("1"), Kind: core.Expense, Date: ts("2025-01-01T00:00:00.000Z"),
			})
		}, log.OpUpdate, log.ErrorTypeDomain},
		{"insert after close", func() error {
			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
			_, err := s.AddCategory(ctx, "Gifts", core.Expense)
			return err
		}, log.OpCreate, log.ErrorTypeDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			if err := tt.write(); err == nil {
				t.Fatal("expected write to fail")
			}
			out := buf.String()
			for _, want := range []string{"operation=" + tt.operation, "error_type=" + tt.errorType} {
				if !strings.Contains(out, want) {
					t.Errorf("log missing %q:\n%s", want, out)
				}
			}
		})
	}
}
