// Package export turns report aggregates into typed tables and encodes them
// as CSV, XLSX or Google Sheets tabs.
package export

import (
	"strconv"
	"time"

	"lodge/internal/core"
)

type Kind int

const (
	KindString Kind = iota
	KindInt
	KindMoney
	KindPercent
	KindDate
	KindBool
)

type (
	Column struct {
		Name string
		Kind Kind
	}

	// Cell is one typed value. Only the field matching Kind is meaningful;
	// an Empty cell renders as blank in every encoding.
	Cell struct {
		Kind  Kind
		Empty bool
		Str   string
		Int   int64
		Float float64
		Time  time.Time
		Bool  bool
	}

	Table struct {
		Title   string
		Columns []Column
		Rows    [][]Cell
	}
)

func String(s string) Cell { return Cell{Kind: KindString, Str: s} }

func Int(n int64) Cell { return Cell{Kind: KindInt, Int: n} }

// Money stores the amount in cents.
func Money(m core.Money) Cell { return Cell{Kind: KindMoney, Int: m.Cents} }

// Percent takes a value in [0,100].
func Percent(p float64) Cell { return Cell{Kind: KindPercent, Float: p} }

func Bool(b bool) Cell { return Cell{Kind: KindBool, Bool: b} }

// Date is blank for the zero time.
func Date(t time.Time) Cell {
	if t.IsZero() {
		return Cell{Kind: KindDate, Empty: true}
	}
	return Cell{Kind: KindDate, Time: t}
}

// OptDate is blank for nil.
func OptDate(t *time.Time) Cell {
	if t == nil {
		return Cell{Kind: KindDate, Empty: true}
	}
	return Date(*t)
}

// Text renders the cell in a locale-neutral form: money as a plain decimal,
// dates as YYYY-MM-DD.
func (c Cell) Text() string {
	if c.Empty {
		return ""
	}
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(c.Int, 10)
	case KindMoney:
		return core.Money{Cents: c.Int}.Decimal()
	case KindPercent:
		return strconv.FormatFloat(c.Float, 'f', 1, 64)
	case KindDate:
		return c.Time.Format("2006-01-02")
	case KindBool:
		return strconv.FormatBool(c.Bool)
	default:
		return c.Str
	}
}

// Header returns the column names in order.
func (t Table) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Records renders every row as text, header first.
func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header())
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, c := range row {
			rec[i] = c.Text()
		}
		out = append(out, rec)
	}
	return out
}
