package storage

import (
	"context"
	"database/sql"
)

const countCategories = `SELECT COUNT(*) FROM categories`

func (q *Queries) CountCategories(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCategories)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createCategory = `INSERT INTO categories (name, kind) VALUES (?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, name, kind string) (int64, error) {
	res, err := q.db.ExecContext(ctx, createCategory, name, kind)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listCategories = `SELECT id, name, kind FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

const listCategoriesByKind = `SELECT id, name, kind FROM categories WHERE kind = ? ORDER BY name`

func (q *Queries) ListCategoriesByKind(ctx context.Context, kind string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategoriesByKind, kind)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

func scanCategories(rows *sql.Rows) ([]Category, error) {
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Kind); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countMovementsByCategory = `SELECT COUNT(*) FROM movements WHERE category_id = ?`

func (q *Queries) CountMovementsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMovementsByCategory, categoryID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createMovement = `INSERT INTO movements (category_id, amount, kind, date, description) VALUES (?, ?, ?, ?, ?)`

type CreateMovementParams struct {
	CategoryID  int64
	Amount      float64
	Kind        string
	Date        string
	Description string
}

func (q *Queries) CreateMovement(ctx context.Context, arg CreateMovementParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createMovement,
		arg.CategoryID,
		arg.Amount,
		arg.Kind,
		arg.Date,
		arg.Description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateMovement = `UPDATE movements SET category_id = ?, amount = ?, kind = ?, date = ?, description = ? WHERE id = ?`

type UpdateMovementParams struct {
	ID          int64
	CategoryID  int64
	Amount      float64
	Kind        string
	Date        string
	Description string
}

func (q *Queries) UpdateMovement(ctx context.Context, arg UpdateMovementParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateMovement,
		arg.CategoryID,
		arg.Amount,
		arg.Kind,
		arg.Date,
		arg.Description,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteMovement = `DELETE FROM movements WHERE id = ?`

func (q *Queries) DeleteMovement(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteMovement, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectMovement = `
SELECT m.id, m.category_id, m.amount, m.kind, m.date, m.description, c.name AS category_name
FROM movements m
INNER JOIN categories c ON m.category_id = c.id`

const getMovement = selectMovement + `
WHERE m.id = ?`

func (q *Queries) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := q.db.QueryRowContext(ctx, getMovement, id)
	var i Movement
	err := row.Scan(
		&i.ID,
		&i.CategoryID,
		&i.Amount,
		&i.Kind,
		&i.Date,
		&i.Description,
		&i.CategoryName,
	)
	return i, err
}

// A negative LIMIT means no limit in SQLite.
const listMovements = selectMovement + `
ORDER BY m.date DESC, m.id DESC
LIMIT ?`

func (q *Queries) ListMovements(ctx context.Context, limit int64) ([]Movement, error) {
	rows, err := q.db.QueryContext(ctx, listMovements, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Movement
	for rows.Next() {
		var i Movement
		if err := rows.Scan(
			&i.ID,
			&i.CategoryID,
			&i.Amount,
			&i.Kind,
			&i.Date,
			&i.Description,
			&i.CategoryName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumAmountByKind = `SELECT SUM(amount) FROM movements WHERE kind = ?`

func (q *Queries) SumAmountByKind(ctx context.Context, kind string) (sql.NullFloat64, error) {
	row := q.db.QueryRowContext(ctx, sumAmountByKind, kind)
	var total sql.NullFloat64
	err := row.Scan(&total)
	return total, err
}

const countMovements = `SELECT COUNT(*) FROM movements`

func (q *Queries) CountMovements(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMovements)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getOpeningBalance = `SELECT id, opening_balance, created_at FROM configuration WHERE id = 1`

func (q *Queries) GetOpeningBalance(ctx context.Context) (Configuration, error) {
	row := q.db.QueryRowContext(ctx, getOpeningBalance)
	var i Configuration
	err := row.Scan(&i.ID, &i.OpeningBalance, &i.CreatedAt)
	return i, err
}

const createConfiguration = `INSERT INTO configuration (opening_balance, created_at) VALUES (?, ?)`

func (q *Queries) CreateConfiguration(ctx context.Context, openingBalance float64, createdAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, createConfiguration, openingBalance, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Range bounds are YYYY-MM-DD; comparing the date prefix keeps both bounds
// inclusive for full timestamps.
const sumExpensesInRange = `
SELECT SUM(amount) FROM movements
WHERE kind = 'expense' AND substr(date, 1, 10) BETWEEN ? AND ?`

func (q *Queries) SumExpensesInRange(ctx context.Context, start, end string) (sql.NullFloat64, error) {
	row := q.db.QueryRowContext(ctx, sumExpensesInRange, start, end)
	var total sql.NullFloat64
	err := row.Scan(&total)
	return total, err
}

const expenseTotalsByMonth = `
SELECT strftime('%Y-%m', date) AS period, SUM(amount) AS total
FROM movements
WHERE kind = 'expense'
GROUP BY period
ORDER BY period DESC
LIMIT ?`

func (q *Queries) ExpenseTotalsByMonth(ctx context.Context, limit int64) ([]PeriodTotal, error) {
	return q.periodTotals(ctx, expenseTotalsByMonth, limit)
}

const expenseTotalsByWeek = `
SELECT strftime('%Y-%W', date) AS period, SUM(amount) AS total
FROM movements
WHERE kind = 'expense'
GROUP BY period
ORDER BY period DESC
LIMIT ?`

func (q *Queries) ExpenseTotalsByWeek(ctx context.Context, limit int64) ([]PeriodTotal, error) {
	return q.periodTotals(ctx, expenseTotalsByWeek, limit)
}

func (q *Queries) periodTotals(ctx context.Context, query string, limit int64) ([]PeriodTotal, error) {
	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PeriodTotal
	for rows.Next() {
		var period sql.NullString
		var i PeriodTotal
		if err := rows.Scan(&period, &i.Total); err != nil {
			return nil, err
		}
		// strftime yields NULL for dates SQLite cannot parse
		if !period.Valid {
			continue
		}
		i.Period = period.String
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const expenseTotalsByCategory = `
SELECT c.id, c.name, SUM(m.amount) AS total
FROM movements m
INNER JOIN categories c ON m.category_id = c.id
WHERE m.kind = 'expense' AND substr(m.date, 1, 10) BETWEEN ? AND ?
GROUP BY c.id, c.name
ORDER BY total DESC`

func (q *Queries) ExpenseTotalsByCategory(ctx context.Context, start, end string) ([]CategoryTotal, error) {
	rows, err := q.db.QueryContext(ctx, expenseTotalsByCategory, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryTotal
	for rows.Next() {
		var i CategoryTotal
		if err := rows.Scan(&i.CategoryID, &i.CategoryName, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
