package storage

import (
	"context"
	"fmt"

	"misgastos/internal/core"
)

// DefaultCategories are inserted into an empty categories table.
var DefaultCategories = []core.Category{
	{Name: "Salary", Kind: core.Income},
	{Name: "Sale", Kind: core.Income},
	{Name: "Freelance", Kind: core.Income},
	{Name: "Investments", Kind: core.Income},
	{Name: "Other Income", Kind: core.Income},
	{Name: "Food", Kind: core.Expense},
	{Name: "Transport", Kind: core.Expense},
	{Name: "Entertainment", Kind: core.Expense},
	{Name: "Utilities", Kind: core.Expense},
	{Name: "Health", Kind: core.Expense},
	{Name: "Education", Kind: core.Expense},
	{Name: "Housing", Kind: core.Expense},
	{Name: "Other Expenses", Kind: core.Expense},
}

// seedCategories inserts the defaults one statement at a time when the
// table is empty. Rows inserted before a failure stay.
func seedCategories(ctx context.Context, q *Queries) (int, error) {
	count, err := q.CountCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for i, c := range DefaultCategories {
		if _, err := q.CreateCategory(ctx, c.Name, string(c.Kind)); err != nil {
			return i, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}
	return len(DefaultCategories), nil
}
