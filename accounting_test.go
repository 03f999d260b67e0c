package sheetstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveRowCount(t *testing.T) {
	store, _ := newTestStore(t, nil)
	cmd := class(t, store, "Person")
	table, err := store.Table(cmd)
	require.NoError(t, err)

	assert.Zero(t, activeRowCount(nil, cmd, table))

	sheet := NewWorkbook().CreateSheet("Person")
	sheet.CreateRow(0).CreateCell(0).SetString("alice")
	sheet.CreateRow(1).CreateCell(0) // blank identity cell still counts
	sheet.CreateRow(2)               // tombstone
	sheet.CreateRow(3).CreateCell(1).SetString("no identity")

	assert.Equal(t, 2, activeRowCount(sheet, cmd, table))
}

func TestActiveRowCount_RequiresAllKeyCells(t *testing.T) {
	cmd := &ClassMeta{
		Name: "Pair",
		Fields: []*FieldMeta{
			{Name: "a", Type: FieldString, PrimaryKey: true},
			{Name: "note", Type: FieldString},
			{Name: "b", Type: FieldInt, PrimaryKey: true},
		},
	}
	table, err := NewTable(cmd, NewConverters())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, activityColumns(cmd, table))

	sheet := NewWorkbook().CreateSheet("Pair")
	full := sheet.CreateRow(0)
	full.CreateCell(0).SetString("x")
	full.CreateCell(2).SetNumber(1)
	sheet.CreateRow(1).CreateCell(0).SetString("y")

	assert.Equal(t, 1, activeRowCount(sheet, cmd, table))
}

func TestActivityColumns(t *testing.T) {
	store, _ := newTestStore(t, nil)

	doc := class(t, store, "Document")
	table, err := store.Table(doc)
	require.NoError(t, err)
	assert.Equal(t, []int{table.DatastoreIDColumn()}, activityColumns(doc, table))

	entry := class(t, store, "LogEntry")
	table, err = store.Table(entry)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, activityColumns(entry, table))
}
