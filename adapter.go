package sheetstore

import "context"

// Adapter interface defines methods for moving a whole workbook between the
// store and a spreadsheet backend
type Adapter interface {
	// Load reads every sheet. A missing document yields an empty workbook.
	Load(ctx context.Context) (*Workbook, error)

	// Save replaces the backend document with the workbook contents
	Save(ctx context.Context, wb *Workbook) error
}
