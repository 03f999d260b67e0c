package googlesheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/ideamans/go-sheetstore"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsAdaptor implements the sheetstore.Adapter interface for Google
// Sheets. Every tab of the spreadsheet is one sheet of the workbook.
type SheetsAdaptor struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewSheetsAdaptor creates a new Google Sheets adaptor with provided options
func NewSheetsAdaptor(ctx context.Context, config Config, opts ...option.ClientOption) (*SheetsAdaptor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsAdaptor{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
	}, nil
}

// Load reads every tab. Values are fetched unformatted, so dates arrive as
// serial numbers.
func (a *SheetsAdaptor) Load(ctx context.Context) (*sheetstore.Workbook, error) {
	tabs, err := a.tabs(ctx)
	if err != nil {
		return nil, err
	}

	wb := sheetstore.NewWorkbook()
	if len(tabs) == 0 {
		return wb, nil
	}

	ranges := make([]string, len(tabs))
	for i, tab := range tabs {
		ranges[i] = quoteSheetName(tab.Title)
	}
	resp, err := a.service.Spreadsheets.Values.BatchGet(a.spreadsheetID).
		Ranges(ranges...).
		MajorDimension("ROWS").
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet data: %w", err)
	}

	for i, tab := range tabs {
		sheet := wb.CreateSheet(tab.Title)
		if i >= len(resp.ValueRanges) {
			continue
		}
		for r, values := range resp.ValueRanges[i].Values {
			var row *sheetstore.Row
			for c, v := range values {
				if v == nil || v == "" {
					continue
				}
				if row == nil {
					row = sheet.CreateRow(r)
				}
				setCellValue(row.CreateCell(c), v)
			}
		}
	}
	return wb, nil
}

// Save replaces the contents of the spreadsheet with the workbook. Tabs
// missing from the workbook are deleted, new ones are added, and every kept
// tab is cleared before its values are written.
func (a *SheetsAdaptor) Save(ctx context.Context, wb *sheetstore.Workbook) error {
	tabs, err := a.tabs(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool)
	for _, name := range wb.SheetNames() {
		wanted[name] = true
	}
	existing := make(map[string]bool)
	for _, tab := range tabs {
		existing[tab.Title] = true
	}

	var requests []*sheets.Request
	for _, name := range wb.SheetNames() {
		if !existing[name] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
			})
		}
	}
	var toClear []string
	remaining := len(tabs) + len(requests)
	for _, tab := range tabs {
		if wanted[tab.Title] {
			continue
		}
		// a spreadsheet keeps at least one tab, which is emptied instead
		if remaining == 1 {
			toClear = append(toClear, quoteSheetName(tab.Title))
			continue
		}
		requests = append(requests, &sheets.Request{
			DeleteSheet: &sheets.DeleteSheetRequest{SheetId: tab.SheetId, ForceSendFields: []string{"SheetId"}},
		})
		remaining--
	}
	if len(requests) > 0 {
		_, err := a.service.Spreadsheets.BatchUpdate(a.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update sheets: %w", err)
		}
	}

	var data []*sheets.ValueRange
	for _, sheet := range wb.Sheets() {
		name := quoteSheetName(sheet.Name())
		toClear = append(toClear, name)
		if values := sheetValues(sheet); len(values) > 0 {
			data = append(data, &sheets.ValueRange{
				Range:          name + "!A1",
				MajorDimension: "ROWS",
				Values:         values,
			})
		}
	}
	if len(toClear) == 0 {
		return nil
	}

	// Clear the kept tabs first
	_, err = a.service.Spreadsheets.Values.BatchClear(a.spreadsheetID, &sheets.BatchClearValuesRequest{
		Ranges: toClear,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheets: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	_, err = a.service.Spreadsheets.Values.BatchUpdate(a.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write sheets: %w", err)
	}
	return nil
}

func (a *SheetsAdaptor) tabs(ctx context.Context) ([]*sheets.SheetProperties, error) {
	ss, err := a.service.Spreadsheets.Get(a.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	tabs := make([]*sheets.SheetProperties, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			tabs = append(tabs, s.Properties)
		}
	}
	return tabs, nil
}

// quoteSheetName renders a tab name for A1 notation
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// setCellValue converts a Google Sheets cell value to a workbook cell
func setCellValue(cell *sheetstore.Cell, v any) {
	switch val := v.(type) {
	case float64:
		cell.SetNumber(val)
	case bool:
		cell.SetBool(val)
	case string:
		cell.SetString(val)
	default:
		cell.SetString(fmt.Sprintf("%v", val))
	}
}

// sheetValues renders the rows of a sheet as a dense grid. Missing rows and
// cells become empty strings, which the API stores as empty cells.
func sheetValues(sheet *sheetstore.Sheet) [][]any {
	last := sheet.LastRowNum()
	if last < 0 {
		return nil
	}
	values := make([][]any, last+1)
	for i := range values {
		values[i] = []any{}
	}
	for _, row := range sheet.Rows() {
		cols := row.Columns()
		if len(cols) == 0 {
			continue
		}
		out := make([]any, cols[len(cols)-1]+1)
		for i := range out {
			out[i] = ""
		}
		for _, col := range cols {
			out[col] = toSheetValue(row.Cell(col))
		}
		values[row.Index()] = out
	}
	return values
}

// toSheetValue converts a workbook cell to a Google Sheets cell value.
// Dates are written as serial numbers.
func toSheetValue(cell *sheetstore.Cell) any {
	switch cell.Kind() {
	case sheetstore.CellNumeric:
		v, _ := cell.Number()
		return v
	case sheetstore.CellString:
		v, _ := cell.Text()
		return v
	case sheetstore.CellBool:
		v, _ := cell.Bool()
		return v
	case sheetstore.CellDate:
		v, _ := cell.Time()
		return sheetstore.TimeToSerial(v)
	}
	return ""
}
