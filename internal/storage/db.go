package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Category struct {
	ID   int64
	Name string
	Kind string
}

type Movement struct {
	ID           int64
	CategoryID   int64
	Amount       float64
	Kind         string
	Date         string
	Description  sql.NullString
	CategoryName string
}

type Configuration struct {
	ID             int64
	OpeningBalance float64
	CreatedAt      string
}

type PeriodTotal struct {
	Period string
	Total  float64
}

type CategoryTotal struct {
	CategoryID   int64
	CategoryName string
	Total        float64
}
