package sheetstore

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// CellKind is the native representation held by a cell
type CellKind int

const (
	CellBlank CellKind = iota // cell exists but holds no value
	CellNumeric
	CellString
	CellBool
	CellDate
)

func (k CellKind) String() string {
	switch k {
	case CellBlank:
		return "blank"
	case CellNumeric:
		return "numeric"
	case CellString:
		return "string"
	case CellBool:
		return "boolean"
	case CellDate:
		return "date"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

// excelEpoch is day zero of the 1900 date system as used by spreadsheet serials
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// TimeToSerial converts a time to a spreadsheet date serial number
func TimeToSerial(t time.Time) float64 {
	return float64(t.UTC().Sub(excelEpoch)) / float64(24*time.Hour)
}

// SerialToTime converts a spreadsheet date serial number to a UTC time,
// rounded to the millisecond
func SerialToTime(serial float64) time.Time {
	ms := math.Round(serial * 24 * 60 * 60 * 1000)
	return excelEpoch.Add(time.Duration(ms) * time.Millisecond)
}

// Cell is one field-column intersection
type Cell struct {
	kind CellKind
	num  float64
	str  string
	b    bool
	t    time.Time
}

// Kind returns the cell's native kind
func (c *Cell) Kind() CellKind { return c.kind }

// SetNumber stores a numeric value
func (c *Cell) SetNumber(v float64) {
	*c = Cell{kind: CellNumeric, num: v}
}

// SetString stores a string value
func (c *Cell) SetString(v string) {
	*c = Cell{kind: CellString, str: v}
}

// SetBool stores a boolean value
func (c *Cell) SetBool(v bool) {
	*c = Cell{kind: CellBool, b: v}
}

// SetDate stores a date value, normalized to UTC
func (c *Cell) SetDate(v time.Time) {
	*c = Cell{kind: CellDate, t: v.UTC()}
}

// SetBlank clears the value but keeps the cell
func (c *Cell) SetBlank() {
	*c = Cell{kind: CellBlank}
}

// Number returns the numeric value. Date cells yield their serial number and
// blank cells yield zero.
func (c *Cell) Number() (float64, bool) {
	switch c.kind {
	case CellNumeric:
		return c.num, true
	case CellDate:
		return TimeToSerial(c.t), true
	case CellBlank:
		return 0, true
	}
	return 0, false
}

// Text returns the string value. Blank cells yield the empty string.
func (c *Cell) Text() (string, bool) {
	switch c.kind {
	case CellString:
		return c.str, true
	case CellBlank:
		return "", true
	}
	return "", false
}

// Bool returns the boolean value. Blank cells yield false.
func (c *Cell) Bool() (bool, bool) {
	switch c.kind {
	case CellBool:
		return c.b, true
	case CellBlank:
		return false, true
	}
	return false, false
}

// Time returns the date value. Numeric cells are interpreted as date serials.
func (c *Cell) Time() (time.Time, bool) {
	switch c.kind {
	case CellDate:
		return c.t, true
	case CellNumeric:
		return SerialToTime(c.num), true
	}
	return time.Time{}, false
}

// Value returns the raw value held by the cell (nil for blank)
func (c *Cell) Value() any {
	switch c.kind {
	case CellNumeric:
		return c.num
	case CellString:
		return c.str
	case CellBool:
		return c.b
	case CellDate:
		return c.t
	}
	return nil
}

func (c *Cell) String() string {
	switch c.kind {
	case CellNumeric:
		return strconv.FormatFloat(c.num, 'g', -1, 64)
	case CellString:
		return c.str
	case CellBool:
		return strconv.FormatBool(c.b)
	case CellDate:
		return c.t.Format(time.RFC3339Nano)
	}
	return ""
}

// Row is one storage slot of a sheet
type Row struct {
	index int
	cells map[int]*Cell
}

// Index returns the zero-based row number
func (r *Row) Index() int { return r.index }

// Cell returns the cell at the column or nil when absent
func (r *Row) Cell(col int) *Cell {
	return r.cells[col]
}

// CreateCell returns the cell at the column, creating a blank one if absent
func (r *Row) CreateCell(col int) *Cell {
	if c, ok := r.cells[col]; ok {
		return c
	}
	c := &Cell{}
	r.cells[col] = c
	return c
}

// RemoveCell deletes the cell at the column
func (r *Row) RemoveCell(col int) {
	delete(r.cells, col)
}

// Columns returns the populated column positions in ascending order
func (r *Row) Columns() []int {
	cols := make([]int, 0, len(r.cells))
	for col := range r.cells {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	return cols
}

// Clear removes every cell while keeping the row structure
func (r *Row) Clear() {
	r.cells = make(map[int]*Cell)
}

// Len returns the number of cells present
func (r *Row) Len() int { return len(r.cells) }

// Sheet is the per-class table within the workbook
type Sheet struct {
	name string
	rows map[int]*Row
}

// Name returns the sheet name
func (s *Sheet) Name() string { return s.name }

// Row returns the row at the index or nil when absent
func (s *Sheet) Row(index int) *Row {
	return s.rows[index]
}

// CreateRow returns the row at the index, creating an empty one if absent
func (s *Sheet) CreateRow(index int) *Row {
	if r, ok := s.rows[index]; ok {
		return r
	}
	r := &Row{index: index, cells: make(map[int]*Cell)}
	s.rows[index] = r
	return r
}

// RemoveRow drops the row structure at the index without shifting others
func (s *Sheet) RemoveRow(index int) {
	delete(s.rows, index)
}

// ShiftRows moves the rows in [start, end] by n positions
func (s *Sheet) ShiftRows(start, end, n int) {
	if n == 0 || start > end {
		return
	}
	moved := make([]*Row, 0, end-start+1)
	for i := start; i <= end; i++ {
		if r, ok := s.rows[i]; ok {
			moved = append(moved, r)
			delete(s.rows, i)
		}
	}
	for _, r := range moved {
		r.index += n
		s.rows[r.index] = r
	}
}

// FirstRowNum returns the lowest row index present, or 0 for an empty sheet
func (s *Sheet) FirstRowNum() int {
	if len(s.rows) == 0 {
		return 0
	}
	first := math.MaxInt
	for i := range s.rows {
		if i < first {
			first = i
		}
	}
	return first
}

// LastRowNum returns the highest row index present, or -1 for an empty sheet
func (s *Sheet) LastRowNum() int {
	last := -1
	for i := range s.rows {
		if i > last {
			last = i
		}
	}
	return last
}

// PhysicalNumberOfRows returns the number of row structures present
func (s *Sheet) PhysicalNumberOfRows() int {
	return len(s.rows)
}

// Rows returns the rows ordered by index
func (s *Sheet) Rows() []*Row {
	rows := make([]*Row, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].index < rows[j].index
	})
	return rows
}

// Workbook is the top-level spreadsheet document
type Workbook struct {
	sheets []*Sheet
}

// NewWorkbook creates an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{}
}

// Sheet returns the named sheet or nil
func (w *Workbook) Sheet(name string) *Sheet {
	for _, s := range w.sheets {
		if s.name == name {
			return s
		}
	}
	return nil
}

// CreateSheet returns the named sheet, creating it if absent
func (w *Workbook) CreateSheet(name string) *Sheet {
	if s := w.Sheet(name); s != nil {
		return s
	}
	s := &Sheet{name: name, rows: make(map[int]*Row)}
	w.sheets = append(w.sheets, s)
	return s
}

// RemoveSheet deletes the named sheet and reports whether it existed
func (w *Workbook) RemoveSheet(name string) bool {
	for i, s := range w.sheets {
		if s.name == name {
			w.sheets = append(w.sheets[:i], w.sheets[i+1:]...)
			return true
		}
	}
	return false
}

// Sheets returns the sheets in creation order
func (w *Workbook) Sheets() []*Sheet {
	out := make([]*Sheet, len(w.sheets))
	copy(out, w.sheets)
	return out
}

// SheetNames returns the sheet names in creation order
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.name
	}
	return names
}
