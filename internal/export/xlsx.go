package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	numFmtMoney   = 4  // #,##0.00
	numFmtPercent = 10 // 0.00%
	numFmtDate    = 14 // m/d/yy
)

// WriteXLSX writes t as a single-sheet workbook with typed cells.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(t.Title)
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("delete default sheet: %w", err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	for i, col := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col.Name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, styles.header); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if v.Empty {
				continue
			}
			if err := f.SetCellValue(sheet, cell, xlsxValue(v)); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
			if style, ok := styles.forKind(v.Kind); ok {
				if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
					return fmt.Errorf("style %s: %w", cell, err)
				}
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx %q: %w", t.Title, err)
	}
	return nil
}

type xlsxStyles struct {
	header, money, percent, date int
}

func newStyles(f *excelize.File) (xlsxStyles, error) {
	var s xlsxStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	if s.money, err = f.NewStyle(&excelize.Style{NumFmt: numFmtMoney}); err != nil {
		return s, fmt.Errorf("money style: %w", err)
	}
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: numFmtPercent}); err != nil {
		return s, fmt.Errorf("percent style: %w", err)
	}
	if s.date, err = f.NewStyle(&excelize.Style{NumFmt: numFmtDate}); err != nil {
		return s, fmt.Errorf("date style: %w", err)
	}
	return s, nil
}

func (s xlsxStyles) forKind(k Kind) (int, bool) {
	switch k {
	case KindMoney:
		return s.money, true
	case KindPercent:
		return s.percent, true
	case KindDate:
		return s.date, true
	}
	return 0, false
}

func xlsxValue(c Cell) any {
	switch c.Kind {
	case KindInt:
		return c.Int
	case KindMoney:
		return float64(c.Int) / 100
	case KindPercent:
		return c.Float / 100
	case KindDate:
		return c.Time
	case KindBool:
		return c.Bool
	default:
		return c.Str
	}
}

// SheetName makes title usable as a worksheet name: at most 31 characters
// and none of []:*?/\.
func SheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "Sheet1"
	}
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}
