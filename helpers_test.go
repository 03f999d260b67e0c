package sheetstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memAdapter keeps the saved workbook in memory. Load and Save copy so a
// rollback really discards unsaved changes.
type memAdapter struct {
	mu        sync.Mutex
	wb        *Workbook
	loads     int
	saves     int
	failLoads int
	failSaves int
}

var errBackend = errors.New("backend unavailable")

func (a *memAdapter) Load(ctx context.Context) (*Workbook, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failLoads > 0 {
		a.failLoads--
		return nil, errBackend
	}
	a.loads++
	if a.wb == nil {
		return NewWorkbook(), nil
	}
	return cloneWorkbook(a.wb), nil
}

func (a *memAdapter) Save(ctx context.Context, wb *Workbook) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failSaves > 0 {
		a.failSaves--
		return errBackend
	}
	a.saves++
	a.wb = cloneWorkbook(wb)
	return nil
}

func (a *memAdapter) saved() *Workbook {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wb
}

func cloneWorkbook(wb *Workbook) *Workbook {
	out := NewWorkbook()
	for _, s := range wb.Sheets() {
		ns := out.CreateSheet(s.Name())
		for _, r := range s.Rows() {
			nr := ns.CreateRow(r.Index())
			for _, col := range r.Columns() {
				*nr.CreateCell(col) = *r.Cell(col)
			}
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// testSchema declares:
//
//	Person   application identity, columns id..mentor in 0..10
//	Address  embedded, with a nested Geo
//	Document datastore identity with a number version
//	LogEntry nondurable
func testSchema(t *testing.T) *Schema {
	t.Helper()
	geo := &ClassMeta{
		Name:         "Geo",
		EmbeddedOnly: true,
		Fields: []*FieldMeta{
			{Name: "lat", Type: FieldFloat64},
			{Name: "lng", Type: FieldFloat64},
		},
	}
	address := &ClassMeta{
		Name:         "Address",
		EmbeddedOnly: true,
		Fields: []*FieldMeta{
			{Name: "street", Type: FieldString},
			{Name: "city", Type: FieldString},
			{Name: "geo", Embedded: geo},
		},
	}
	person := &ClassMeta{
		Name: "Person",
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldString, PrimaryKey: true},
			{Name: "name", Type: FieldString},
			{Name: "age", Type: FieldInt},
			{Name: "address", Embedded: address},
			{Name: "manager", Relation: RelationOne, Target: "Person", CascadePersist: true},
			{Name: "friends", Relation: RelationCollection, Target: "Person", CascadePersist: true, CascadeDelete: true},
			{Name: "scores", Relation: RelationMap, KeyType: FieldString, ValueType: FieldInt64},
			{Name: "mentor", Relation: RelationOne, Target: "Person"},
		},
	}
	document := &ClassMeta{
		Name:     "Document",
		Table:    "Documents",
		Identity: IdentityDatastore,
		Version:  &VersionMeta{Strategy: VersionNumber},
		Fields: []*FieldMeta{
			{Name: "title", Type: FieldString},
		},
	}
	logEntry := &ClassMeta{
		Name:     "LogEntry",
		Identity: IdentityNondurable,
		Fields: []*FieldMeta{
			{Name: "msg", Type: FieldString},
			{Name: "level", Type: FieldInt},
		},
	}
	schema, err := NewSchema(geo, address, person, document, logEntry)
	require.NoError(t, err)
	return schema
}

func newTestStore(t *testing.T, cfg *Config) (*Store, *memAdapter) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Millisecond
	}
	adapter := &memAdapter{}
	store := New(adapter, testSchema(t), cfg)
	t.Cleanup(func() { store.Close() })
	return store, adapter
}

func class(t *testing.T, s *Store, name string) *ClassMeta {
	t.Helper()
	cmd, ok := s.Schema().Class(name)
	require.True(t, ok, "class %s", name)
	return cmd
}

func newPerson(t *testing.T, s *Store, id, name string, age int) *Record {
	t.Helper()
	r := NewRecord(class(t, s, "Person"))
	require.NoError(t, r.Set("id", id))
	require.NoError(t, r.Set("name", name))
	require.NoError(t, r.Set("age", age))
	return r
}

func sheetOf(t *testing.T, s *Store, name string) *Sheet {
	t.Helper()
	var sheet *Sheet
	require.NoError(t, s.View(func(wb *Workbook) error {
		sheet = wb.Sheet(name)
		return nil
	}))
	require.NotNil(t, sheet, "sheet %s", name)
	return sheet
}

func cellText(t *testing.T, sheet *Sheet, row, col int) string {
	t.Helper()
	r := sheet.Row(row)
	require.NotNil(t, r, "row %d", row)
	c := r.Cell(col)
	require.NotNil(t, c, "cell %d,%d", row, col)
	return c.String()
}
