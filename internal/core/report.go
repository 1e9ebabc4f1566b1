package core

import "github.com/shopspring/decimal"

// Stats is a point-in-time snapshot of the ledger totals.
type Stats struct {
	TotalIncome    decimal.Decimal
	TotalExpense   decimal.Decimal
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	MovementCount  int64
}

// PeriodTotal is the expense total of one month (YYYY-MM) or week (YYYY-WW).
type PeriodTotal struct {
	Period string
	Total  decimal.Decimal
}

// CategoryTotal is the expense total of one category within a range.
type CategoryTotal struct {
	CategoryID   int64
	CategoryName string
	Total        decimal.Decimal
}

// CategoryShare adds the percentage of the overall total to a CategoryTotal.
type CategoryShare struct {
	CategoryTotal
	Percent decimal.Decimal
}

// Balance computes opening + income - expense.
func Balance(opening, income, expense decimal.Decimal) decimal.Decimal {
	return opening.Add(income).Sub(expense)
}

// Shares derives each category's percentage of the sum of totals, rounded
// to one decimal. Percentages are zero when the sum is zero.
func Shares(totals []CategoryTotal) (decimal.Decimal, []CategoryShare) {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	out := make([]CategoryShare, len(totals))
	for i, t := range totals {
		pct := decimal.Zero
		if sum.IsPositive() {
			pct = t.Total.Div(sum).Mul(decimal.NewFromInt(100)).Round(1)
		}
		out[i] = CategoryShare{CategoryTotal: t, Percent: pct}
	}
	return sum, out
}
