package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ideamans/go-sheetstore"
	"github.com/xuri/excelize/v2"
)

// defaultSheet is the sheet excelize creates in a new file
const defaultSheet = "Sheet1"

// days between the 1900 and 1904 date systems
const date1904Offset = 1462

// Adapter implements the sheetstore.Adapter interface for Excel files
type Adapter struct {
	config *Config
	mu     sync.RWMutex
}

// New creates a new Excel adapter with the given configuration
func New(config *Config) (*Adapter, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create a copy of config to avoid external modifications
	configCopy := *config

	return &Adapter{
		config: &configCopy,
	}, nil
}

// NewFromURL creates an adapter from an excel:file:<path> connection URL
func NewFromURL(url string) (*Adapter, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// FilePath returns the workbook file
func (a *Adapter) FilePath() string { return a.config.FilePath }

// Load reads every sheet of the Excel file. A missing file yields an empty
// workbook.
func (a *Adapter) Load(ctx context.Context) (*sheetstore.Workbook, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	// Check if context is cancelled
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := excelize.OpenFile(a.config.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sheetstore.NewWorkbook(), nil
		}
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrInvalidFileFormat, a.config.FilePath, err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	r := &reader{f: f, date1904: date1904, dateStyles: make(map[int]bool)}

	wb := sheetstore.NewWorkbook()
	for _, name := range f.GetSheetList() {
		if err := r.readSheet(wb.CreateSheet(name)); err != nil {
			return nil, err
		}
	}
	return wb, nil
}

type reader struct {
	f          *excelize.File
	date1904   bool
	dateStyles map[int]bool // style index -> has a date number format
}

func (r *reader) readSheet(sheet *sheetstore.Sheet) error {
	name := sheet.Name()
	rows, err := r.f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("failed to get rows of %s: %w", name, err)
	}

	for rowIdx, values := range rows {
		var row *sheetstore.Row
		for colIdx, value := range values {
			if value == "" {
				continue
			}
			cellName, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return err
			}
			if row == nil {
				row = sheet.CreateRow(rowIdx)
			}
			if err := r.readCell(name, cellName, value, row.CreateCell(colIdx)); err != nil {
				return fmt.Errorf("failed to read %s!%s: %w", name, cellName, err)
			}
		}
	}
	return nil
}

func (r *reader) readCell(sheet, cellName, value string, cell *sheetstore.Cell) error {
	typ, err := r.f.GetCellType(sheet, cellName)
	if err != nil {
		return err
	}

	switch typ {
	case excelize.CellTypeBool:
		cell.SetBool(value == "1" || strings.EqualFold(value, "true"))
		return nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeFormula, excelize.CellTypeError:
		cell.SetString(value)
		return nil
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, value); err == nil {
				cell.SetDate(t)
				return nil
			}
		}
		cell.SetString(value)
		return nil
	}

	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		// a number-typed cell holding text, keep what is there
		cell.SetString(value)
		return nil
	}
	isDate, err := r.hasDateFormat(sheet, cellName)
	if err != nil {
		return err
	}
	if isDate {
		if r.date1904 {
			num += date1904Offset
		}
		cell.SetDate(sheetstore.SerialToTime(num))
		return nil
	}
	cell.SetNumber(num)
	return nil
}

// hasDateFormat reports whether the number format of the cell renders a date
func (r *reader) hasDateFormat(sheet, cellName string) (bool, error) {
	idx, err := r.f.GetCellStyle(sheet, cellName)
	if err != nil {
		return false, err
	}
	if idx == 0 {
		return false, nil
	}
	if isDate, ok := r.dateStyles[idx]; ok {
		return isDate, nil
	}
	style, err := r.f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	isDate := isDateFormat(style.NumFmt, style.CustomNumFmt)
	r.dateStyles[idx] = isDate
	return isDate, nil
}

// isDateFormat checks the built-in date formats 14-22 and 45-47, and custom
// formats that contain a year or day token outside quoted text
func isDateFormat(numFmt int, custom *string) bool {
	if custom != nil {
		inQuote := false
		for _, ch := range strings.ToLower(*custom) {
			switch {
			case ch == '"':
				inQuote = !inQuote
			case !inQuote && (ch == 'y' || ch == 'd'):
				return true
			}
		}
		return false
	}
	return (numFmt >= 14 && numFmt <= 22) || (numFmt >= 45 && numFmt <= 47)
}

// Save replaces the Excel file with the workbook contents. Blank cells are
// not written.
func (a *Adapter) Save(ctx context.Context, wb *sheetstore.Workbook) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Check if context is cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(a.config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	for i, sheet := range wb.Sheets() {
		if i == 0 {
			if sheet.Name() != defaultSheet {
				if err := f.SetSheetName(defaultSheet, sheet.Name()); err != nil {
					return fmt.Errorf("failed to name sheet %s: %w", sheet.Name(), err)
				}
			}
		} else if _, err := f.NewSheet(sheet.Name()); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.Name(), err)
		}
		if err := writeSheet(f, sheet, dateStyle); err != nil {
			return err
		}
	}

	if err := f.SaveAs(a.config.FilePath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet *sheetstore.Sheet, dateStyle int) error {
	name := sheet.Name()
	for _, row := range sheet.Rows() {
		for _, col := range row.Columns() {
			cell := row.Cell(col)
			cellName, err := excelize.CoordinatesToCellName(col+1, row.Index()+1)
			if err != nil {
				return err
			}
			switch cell.Kind() {
			case sheetstore.CellNumeric:
				v, _ := cell.Number()
				err = f.SetCellFloat(name, cellName, v, -1, 64)
			case sheetstore.CellString:
				v, _ := cell.Text()
				err = f.SetCellStr(name, cellName, v)
			case sheetstore.CellBool:
				v, _ := cell.Bool()
				err = f.SetCellBool(name, cellName, v)
			case sheetstore.CellDate:
				v, _ := cell.Time()
				if err = f.SetCellFloat(name, cellName, sheetstore.TimeToSerial(v), -1, 64); err == nil {
					err = f.SetCellStyle(name, cellName, cellName, dateStyle)
				}
			}
			if err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", name, cellName, err)
			}
		}
	}
	return nil
}
