package excel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ideamans/go-sheetstore"
	"github.com/ideamans/go-sheetstore/adapters/adaptertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"valid config", &Config{FilePath: "test.xlsx"}, false},
		{"missing file path", &Config{}, true},
		{"unknown format", &Config{FilePath: "test.xlsx", Format: "csv"}, true},
		{"nil config", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantPath   string
		wantFormat string
		wantErr    bool
	}{
		{"excel:file:data/book.xlsx", "data/book.xlsx", "excel", false},
		{"ooxml:file:/tmp/a.xlsx", "/tmp/a.xlsx", "ooxml", false},
		{"XLS:file:legacy.xls", "legacy.xls", "xls", false},
		{"excel:data/book.xlsx", "", "", true},
		{"excel:file:", "", "", true},
		{"csv:file:a.csv", "", "", true},
		{"book.xlsx", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg, err := ParseURL(tt.url)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidURL), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cfg.FilePath)
			assert.Equal(t, tt.wantFormat, cfg.Format)
		})
	}
}

func TestAdapter_LoadMissingFile(t *testing.T) {
	adapter, err := New(&Config{FilePath: filepath.Join(t.TempDir(), "none.xlsx")})
	require.NoError(t, err)

	wb, err := adapter.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, wb.SheetNames())
}

func TestAdapter_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "book.xlsx")
	adapter, err := NewFromURL("excel:file:" + path)
	require.NoError(t, err)
	ctx := context.Background()

	when := time.Date(2024, 3, 9, 14, 30, 15, 250*int(time.Millisecond), time.UTC)
	wb := sheetstore.NewWorkbook()
	people := wb.CreateSheet("People")
	row := people.CreateRow(0)
	row.CreateCell(0).SetString("alice")
	row.CreateCell(1).SetNumber(34)
	row.CreateCell(2).SetNumber(1.25)
	row.CreateCell(3).SetBool(true)
	row.CreateCell(4).SetDate(when)
	row.CreateCell(6).SetString("[Person:bob]")
	people.CreateRow(2).CreateCell(1).SetBool(false)
	people.CreateRow(3).CreateCell(0) // blank cells are dropped
	wb.CreateSheet("Empty")

	require.NoError(t, adapter.Save(ctx, wb))
	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := adapter.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"People", "Empty"}, loaded.SheetNames())

	got := loaded.Sheet("People")
	require.NotNil(t, got)
	assert.Equal(t, 2, got.PhysicalNumberOfRows())
	assert.Nil(t, got.Row(1))
	assert.Nil(t, got.Row(3))

	r := got.Row(0)
	require.NotNil(t, r)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 6}, r.Columns())

	s, ok := r.Cell(0).Text()
	require.True(t, ok)
	assert.Equal(t, "alice", s)

	n, ok := r.Cell(1).Number()
	require.True(t, ok)
	assert.Equal(t, 34.0, n)
	n, _ = r.Cell(2).Number()
	assert.Equal(t, 1.25, n)

	assert.Equal(t, sheetstore.CellBool, r.Cell(3).Kind())
	b, _ := r.Cell(3).Bool()
	assert.True(t, b)

	assert.Equal(t, sheetstore.CellDate, r.Cell(4).Kind())
	ts, ok := r.Cell(4).Time()
	require.True(t, ok)
	assert.True(t, when.Equal(ts), "got %v", ts)

	s, _ = r.Cell(6).Text()
	assert.Equal(t, "[Person:bob]", s)

	b, ok = got.Row(2).Cell(1).Bool()
	require.True(t, ok)
	assert.False(t, b)

	empty := loaded.Sheet("Empty")
	require.NotNil(t, empty)
	assert.Zero(t, empty.PhysicalNumberOfRows())
}

func TestAdapter_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	adapter, err := New(&Config{FilePath: path})
	require.NoError(t, err)
	ctx := context.Background()

	wb := sheetstore.NewWorkbook()
	s := wb.CreateSheet("A")
	s.CreateRow(0).CreateCell(0).SetString("one")
	s.CreateRow(1).CreateCell(0).SetString("two")
	wb.CreateSheet("B")
	require.NoError(t, adapter.Save(ctx, wb))

	wb.RemoveSheet("B")
	s.RemoveRow(1)
	require.NoError(t, adapter.Save(ctx, wb))

	loaded, err := adapter.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, loaded.SheetNames())
	assert.Equal(t, 1, loaded.Sheet("A").PhysicalNumberOfRows())
}

func TestAdapter_ReadsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "label"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", 42))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", true))
	require.NoError(t, f.SetCellFloat("Sheet1", "D1", 45000, -1, 64))
	custom := "yyyy/mm/dd"
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "D1", "D1", style))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	adapter, err := New(&Config{FilePath: path})
	require.NoError(t, err)
	wb, err := adapter.Load(context.Background())
	require.NoError(t, err)

	row := wb.Sheet("Sheet1").Row(0)
	require.NotNil(t, row)
	assert.Equal(t, sheetstore.CellString, row.Cell(0).Kind())
	assert.Equal(t, sheetstore.CellNumeric, row.Cell(1).Kind())
	assert.Equal(t, sheetstore.CellBool, row.Cell(2).Kind())
	assert.Equal(t, sheetstore.CellDate, row.Cell(3).Kind())
	ts, _ := row.Cell(3).Time()
	assert.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), ts)
}

func TestAdapter_LoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	adapter, err := New(&Config{FilePath: path})
	require.NoError(t, err)
	_, err = adapter.Load(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidFileFormat))
}

func TestAdapter_ContextCancelled(t *testing.T) {
	adapter, err := New(&Config{FilePath: filepath.Join(t.TempDir(), "x.xlsx")})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = adapter.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, adapter.Save(ctx, sheetstore.NewWorkbook()), context.Canceled)
}

func TestIsDateFormat(t *testing.T) {
	str := func(s string) *string { return &s }
	assert.True(t, isDateFormat(14, nil))
	assert.True(t, isDateFormat(22, nil))
	assert.True(t, isDateFormat(46, nil))
	assert.False(t, isDateFormat(2, nil))
	assert.True(t, isDateFormat(0, str("dd-mmm")))
	assert.False(t, isDateFormat(0, str(`0.00"days"`)))
	assert.False(t, isDateFormat(0, str("#,##0")))
}

func TestStoreOverExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.xlsx")
	adapter, err := New(&Config{FilePath: path})
	require.NoError(t, err)

	cmd := &sheetstore.ClassMeta{
		Name: "Item",
		Fields: []*sheetstore.FieldMeta{
			{Name: "sku", Type: sheetstore.FieldString, PrimaryKey: true},
			{Name: "qty", Type: sheetstore.FieldInt},
			{Name: "added", Type: sheetstore.FieldDate},
		},
	}
	schema, err := sheetstore.NewSchema(cmd)
	require.NoError(t, err)

	added := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	store := sheetstore.New(adapter, schema, nil)
	item := sheetstore.NewRecord(cmd)
	require.NoError(t, item.Set("sku", "A-1"))
	require.NoError(t, item.Set("qty", 7))
	require.NoError(t, item.Set("added", added))
	require.NoError(t, sheetstore.NewSession(store).Persist(item))
	require.NoError(t, store.Close())

	reopened := sheetstore.New(adapter, schema, nil)
	defer reopened.Close()
	got, err := sheetstore.NewSession(reopened).Find("Item", "A-1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Get("qty"))
	assert.True(t, added.Equal(got.GetAsTime("added", time.Time{})))
}

func TestAdapterSuite(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) sheetstore.Adapter {
		adapter, err := New(&Config{FilePath: filepath.Join(t.TempDir(), "suite.xlsx")})
		require.NoError(t, err)
		return adapter
	})
}
