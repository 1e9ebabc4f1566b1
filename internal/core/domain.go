package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// TimestampLayout is the fixed-width UTC layout movement dates are stored in.
// Lexical order of formatted values equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type (
	Kind string

	Category struct {
		ID   int64
		Name string
		Kind Kind
	}

	Movement struct {
		ID           int64
		CategoryID   int64
		Amount       decimal.Decimal
		Kind         Kind
		Date         time.Time
		Description  string
		CategoryName string // populated by joined reads
	}

	// MovementInput carries the mutable fields of a movement.
	MovementInput struct {
		CategoryID  int64
		Amount      decimal.Decimal
		Kind        Kind
		Date        time.Time
		Description string
	}

	OpeningBalance struct {
		ID        int64
		Amount    decimal.Decimal
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid kind")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrEmptyName          = errors.New("empty name")
	ErrCategoryInUse      = errors.New("category has movements")
	ErrOpeningBalanceSet  = errors.New("opening balance already set")
	ErrNotFound           = errors.New("not found")
)

// ParseKind accepts the English kind names and their Spanish equivalents.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "ingreso":
		return Income, nil
	case "expense", "gasto":
		return Expense, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	}
	return ErrInvalidKind
}

func (k Kind) String() string {
	return string(k)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored movement date. Plain dates and RFC 3339
// values are accepted as well, so rows written by other tools still load.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (in MovementInput) Validate() error {
	if in.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if err := in.Kind.Validate(); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Input returns the editable fields of m.
func (m Movement) Input() MovementInput {
	return MovementInput{
		CategoryID:  m.CategoryID,
		Amount:      m.Amount,
		Kind:        m.Kind,
		Date:        m.Date,
		Description: m.Description,
	}
}
