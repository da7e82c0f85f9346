package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// Writer builds a workbook one sheet at a time.
type Writer interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter implements Writer with excelize.
type ExcelizeWriter struct {
	file        *excelize.File
	sheet       string
	row         int
	headerStyle int
	widths      []int
}

// NewExcelizeWriter creates an empty workbook.
func NewExcelizeWriter() Writer {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E0E0"}},
	})
	if err != nil {
		style = 0
	}
	return &ExcelizeWriter{file: f, headerStyle: style}
}

// AddSheet starts a new sheet. The first call renames the default sheet.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	w.finishSheet()

	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.sheet = name
	w.row = 1
	w.widths = nil
	return nil
}

// WriteHeader writes a bold header row and freezes it.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if w.headerStyle != 0 {
		_ = w.file.SetCellStyle(w.sheet, start, end, w.headerStyle)
	}
	return w.file.SetPanes(w.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteRow appends a data row. Timestamps are written as RFC3339 text.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}

	values := make([]any, len(row))
	for i, v := range row {
		switch t := v.(type) {
		case time.Time:
			values[i] = t.UTC().Format(time.RFC3339)
		case nil:
			values[i] = ""
		default:
			values[i] = v
		}
		w.track(i, values[i])
	}

	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return err
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) track(col int, v any) {
	for len(w.widths) <= col {
		w.widths = append(w.widths, 8)
	}
	if n := len(fmt.Sprint(v)) + 2; n > w.widths[col] && n <= 60 {
		w.widths[col] = n
	}
}

func (w *ExcelizeWriter) finishSheet() {
	if w.sheet == "" {
		return
	}
	for i, width := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		_ = w.file.SetColWidth(w.sheet, col, col, float64(width))
	}
}

// Save writes the workbook.
func (w *ExcelizeWriter) Save(out io.Writer) error {
	w.finishSheet()
	return w.file.Write(out)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
