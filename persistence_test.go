package sheetstore

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_WritesRowAndCascadesReference(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	bob := newPerson(t, store, "bob", "Bob", 51)
	require.NoError(t, alice.Set("manager", bob))

	require.NoError(t, session.Persist(alice))
	assert.True(t, alice.IsPersistent())
	assert.True(t, bob.IsPersistent(), "cascade persist")

	sheet := sheetOf(t, store, "Person")
	assert.Equal(t, "alice", cellText(t, sheet, 0, 0))
	assert.Equal(t, "Alice", cellText(t, sheet, 0, 1))
	assert.Equal(t, "34", cellText(t, sheet, 0, 2))
	assert.Equal(t, "[Person:bob]", cellText(t, sheet, 0, 7))
	// bob was inserted while alice's row was being written
	assert.Equal(t, "bob", cellText(t, sheet, 1, 0))
	assert.Nil(t, sheet.Row(0).Cell(3), "unset embedded object leaves no cells")

	count, err := store.ActiveRowCount(class(t, store, "Person"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInsert_Duplicate(t *testing.T) {
	store, _ := newTestStore(t, nil)

	require.NoError(t, store.Insert(newPerson(t, store, "alice", "Alice", 34)))
	err := store.Insert(newPerson(t, store, "alice", "Other", 1))
	assert.True(t, errors.Is(err, ErrDuplicateIdentity))

	var oe *ObjectError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "insert", oe.Op)
	assert.Equal(t, "Person:alice", oe.Identity)

	session := NewSession(store)
	dup := newPerson(t, store, "alice", "Third", 2)
	assert.True(t, errors.Is(session.Persist(dup), ErrDuplicateIdentity))
	assert.False(t, dup.IsPersistent())
}

func TestInsert_ReachabilityWithoutCascade(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("mentor", newPerson(t, store, "mallory", "Mallory", 40)))

	err := session.Persist(alice)
	assert.True(t, errors.Is(err, ErrReachability))
	assert.False(t, alice.IsPersistent())
	count, err := store.ActiveRowCount(class(t, store, "Person"))
	require.NoError(t, err)
	assert.Zero(t, count, "the partly written row is discarded")

	mentor := newPerson(t, store, "trent", "Trent", 60)
	require.NoError(t, session.Persist(mentor))
	other := newPerson(t, store, "oscar", "Oscar", 20)
	require.NoError(t, other.Set("mentor", mentor))
	require.NoError(t, session.Persist(other))
}

func TestInsert_ReferenceWithoutContext(t *testing.T) {
	store, _ := newTestStore(t, nil)
	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("manager", newPerson(t, store, "bob", "Bob", 51)))

	err := store.Insert(alice)
	assert.True(t, errors.Is(err, ErrNoContext))
}

func TestInsert_EmbeddedAndCollections(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)
	cmd := class(t, store, "Person")

	geo := NewRecord(cmd.Field(3).Embedded.Field(2).Embedded)
	require.NoError(t, geo.Set("lat", 35.68))
	require.NoError(t, geo.Set("lng", 139.76))
	addr := NewRecord(cmd.Field(3).Embedded)
	require.NoError(t, addr.Set("street", "1-1 Chiyoda"))
	require.NoError(t, addr.Set("city", "Tokyo"))
	require.NoError(t, addr.Set("geo", geo))

	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("address", addr))
	require.NoError(t, alice.Set("friends", []any{
		newPerson(t, store, "bob", "Bob", 51),
		newPerson(t, store, "carol", "Carol", 28),
	}))
	require.NoError(t, alice.Set("scores", []MapEntry{
		{Key: "math", Value: int64(90)},
		{Key: "art", Value: int64(75)},
	}))
	require.NoError(t, session.Persist(alice))

	sheet := sheetOf(t, store, "Person")
	assert.Equal(t, "1-1 Chiyoda", cellText(t, sheet, 0, 3))
	assert.Equal(t, "Tokyo", cellText(t, sheet, 0, 4))
	assert.Equal(t, "35.68", cellText(t, sheet, 0, 5))
	assert.Equal(t, "139.76", cellText(t, sheet, 0, 6))
	assert.Equal(t, "[Person:bob,Person:carol]", cellText(t, sheet, 0, 8))
	assert.Equal(t, "[[math],[90],[art],[75]]", cellText(t, sheet, 0, 9))

	fresh := NewSession(store)
	got, err := fresh.Find("Person", "alice")
	require.NoError(t, err)
	gotAddr := got.GetRecord("address")
	require.NotNil(t, gotAddr)
	assert.Equal(t, "Tokyo", gotAddr.GetAsString("city", ""))
	assert.Equal(t, 139.76, gotAddr.GetRecord("geo").GetAsFloat64("lng", 0))

	friends := got.GetRecords("friends")
	require.Len(t, friends, 2)
	assert.Equal(t, "Bob", friends[0].GetAsString("name", ""))
	assert.Equal(t, "Carol", friends[1].GetAsString("name", ""))

	assert.Equal(t, []MapEntry{{Key: "math", Value: int64(90)}, {Key: "art", Value: int64(75)}}, got.Get("scores"))
	assert.False(t, got.IsDirty())
}

func TestUpdate_EmbeddedNullClearsNestedColumns(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)
	cmd := class(t, store, "Person")

	geo := NewRecord(cmd.Field(3).Embedded.Field(2).Embedded)
	require.NoError(t, geo.Set("lat", 1.0))
	addr := NewRecord(cmd.Field(3).Embedded)
	require.NoError(t, addr.Set("city", "Osaka"))
	require.NoError(t, addr.Set("geo", geo))
	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("address", addr))
	require.NoError(t, session.Persist(alice))

	sheet := sheetOf(t, store, "Person")
	require.NotNil(t, sheet.Row(0).Cell(5))

	require.NoError(t, alice.Set("address", nil))
	assert.Equal(t, []int{3}, alice.DirtyFields())
	require.NoError(t, session.Flush())

	for col := 3; col <= 6; col++ {
		assert.Nil(t, sheet.Row(0).Cell(col), "column %d", col)
	}
	assert.False(t, alice.IsDirty())
}

func TestUpdate_EmbeddedChangeMarksOwnerDirty(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)
	cmd := class(t, store, "Person")

	addr := NewRecord(cmd.Field(3).Embedded)
	require.NoError(t, addr.Set("city", "Osaka"))
	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("address", addr))
	require.NoError(t, session.Persist(alice))

	require.NoError(t, addr.Set("city", "Kyoto"))
	assert.Equal(t, []int{3}, alice.DirtyFields())
	require.NoError(t, session.Flush())

	assert.Equal(t, "Kyoto", cellText(t, sheetOf(t, store, "Person"), 0, 4))
}

func TestUpdate_NotFound(t *testing.T) {
	store, _ := newTestStore(t, nil)
	require.NoError(t, store.Insert(newPerson(t, store, "alice", "Alice", 34)))

	ghost := newPerson(t, store, "ghost", "Ghost", 0)
	err := store.Update(ghost, []int{1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOperations_SheetNotFound(t *testing.T) {
	store, _ := newTestStore(t, nil)
	alice := newPerson(t, store, "alice", "Alice", 34)

	assert.True(t, errors.Is(store.Update(alice, []int{1}), ErrSheetNotFound))
	assert.True(t, errors.Is(store.Delete(alice), ErrSheetNotFound))
	assert.True(t, errors.Is(store.Fetch(alice, []int{1}), ErrSheetNotFound))
	// locate treats a missing sheet as an empty one
	assert.True(t, errors.Is(store.Locate(alice), ErrNotFound))
}

func TestDelete_ShiftsRowsUp(t *testing.T) {
	store, _ := newTestStore(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(newPerson(t, store, id, id, 1)))
	}

	require.NoError(t, store.Delete(newPerson(t, store, "b", "", 0)))

	sheet := sheetOf(t, store, "Person")
	assert.Equal(t, 1, sheet.LastRowNum())
	assert.Equal(t, "a", cellText(t, sheet, 0, 0))
	assert.Equal(t, "c", cellText(t, sheet, 1, 0))

	idx, err := store.RowOf(newPerson(t, store, "c", "", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestDelete_LastRowIsTombstoned(t *testing.T) {
	store, _ := newTestStore(t, nil)
	cmd := class(t, store, "Person")
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Insert(newPerson(t, store, id, id, 1)))
	}

	require.NoError(t, store.Delete(newPerson(t, store, "b", "", 0)))

	sheet := sheetOf(t, store, "Person")
	require.NotNil(t, sheet.Row(1), "the last row keeps its structure")
	assert.Zero(t, sheet.Row(1).Len())
	count, err := store.ActiveRowCount(cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Insert(newPerson(t, store, "d", "d", 1)))
	assert.Equal(t, "d", cellText(t, sheet, 1, 0))
	assert.Equal(t, 2, sheet.PhysicalNumberOfRows())
}

func TestDelete_CascadesToDependents(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	bob := newPerson(t, store, "bob", "Bob", 51)
	require.NoError(t, alice.Set("friends", []any{bob}))
	require.NoError(t, session.Persist(alice))

	require.NoError(t, session.Delete(alice))
	assert.False(t, alice.IsPersistent())
	assert.False(t, bob.IsPersistent())

	count, err := store.ActiveRowCount(class(t, store, "Person"))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDelete_CyclicCascadeStops(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	bob := newPerson(t, store, "bob", "Bob", 51)
	require.NoError(t, alice.Set("friends", []any{bob}))
	require.NoError(t, bob.Set("friends", []any{alice}))
	require.NoError(t, session.Persist(alice))

	sheet := sheetOf(t, store, "Person")
	assert.Equal(t, "[Person:alice]", cellText(t, sheet, 1, 8))

	require.NoError(t, session.Delete(alice))
	count, err := store.ActiveRowCount(class(t, store, "Person"))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFetch_DanglingReferenceDropped(t *testing.T) {
	var logs bytes.Buffer
	store, _ := newTestStore(t, &Config{Logger: bufferLogger(&logs)})
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	bob := newPerson(t, store, "bob", "Bob", 51)
	carol := newPerson(t, store, "carol", "Carol", 28)
	require.NoError(t, alice.Set("friends", []any{bob, carol}))
	require.NoError(t, alice.Set("manager", bob))
	require.NoError(t, session.Persist(alice))

	// remove bob's row behind the session's back
	require.NoError(t, store.Delete(newPerson(t, store, "bob", "", 0)))

	fresh := NewSession(store)
	got, err := fresh.Find("Person", "alice")
	require.NoError(t, err)
	assert.Nil(t, got.Get("manager"))
	friends := got.GetRecords("friends")
	require.Len(t, friends, 1)
	assert.Equal(t, "carol", friends[0].GetAsString("id", ""))
	assert.Equal(t, []int{5}, got.DirtyFields(), "the dropped element marks the collection dirty")
	assert.Contains(t, logs.String(), "reference dropped")

	require.NoError(t, fresh.Flush())
	assert.Equal(t, "[Person:carol]", cellText(t, sheetOf(t, store, "Person"), 0, 8))
}

func TestFetch_StrictReferences(t *testing.T) {
	store, _ := newTestStore(t, &Config{StrictReferences: true})
	session := NewSession(store)

	alice := newPerson(t, store, "alice", "Alice", 34)
	require.NoError(t, alice.Set("manager", newPerson(t, store, "bob", "Bob", 51)))
	require.NoError(t, session.Persist(alice))
	require.NoError(t, store.Delete(newPerson(t, store, "bob", "", 0)))

	_, err := NewSession(store).Find("Person", "alice")
	assert.True(t, errors.Is(err, ErrDanglingReference))
}

func TestFetch_CellKindMismatch(t *testing.T) {
	var logs bytes.Buffer
	store, _ := newTestStore(t, &Config{Logger: bufferLogger(&logs)})
	require.NoError(t, store.Insert(newPerson(t, store, "alice", "Alice", 34)))
	require.NoError(t, store.Modify(func(wb *Workbook) error {
		wb.Sheet("Person").Row(0).Cell(2).SetString("thirty-four")
		return nil
	}))

	got, err := NewSession(store).Find("Person", "alice")
	require.NoError(t, err)
	assert.Nil(t, got.Get("age"))
	assert.Equal(t, "Alice", got.Get("name"))
	assert.Contains(t, logs.String(), "field skipped")

	strict, _ := newTestStore(t, &Config{StrictMapping: true})
	require.NoError(t, strict.Insert(newPerson(t, strict, "alice", "Alice", 34)))
	require.NoError(t, strict.Modify(func(wb *Workbook) error {
		wb.Sheet("Person").Row(0).Cell(2).SetString("thirty-four")
		return nil
	}))
	_, err = NewSession(strict).Find("Person", "alice")
	assert.True(t, errors.Is(err, ErrUnsupportedMapping))
}

func TestVersion_NumberAdvances(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)
	cmd := class(t, store, "Document")
	table, err := store.Table(cmd)
	require.NoError(t, err)

	doc := NewRecord(cmd)
	require.NoError(t, doc.Set("title", "draft"))
	require.NoError(t, session.Persist(doc))
	assert.Equal(t, int64(1), doc.ID())
	assert.Equal(t, int64(1), doc.Version())

	require.NoError(t, doc.Set("title", "final"))
	require.NoError(t, session.Flush())
	assert.Equal(t, int64(2), doc.Version())

	sheet := sheetOf(t, store, "Documents")
	assert.Equal(t, "final", cellText(t, sheet, 0, 0))
	assert.Equal(t, "1", cellText(t, sheet, 0, table.DatastoreIDColumn()))
	assert.Equal(t, "2", cellText(t, sheet, 0, table.VersionColumn()))

	got, err := NewSession(store).Find("Document", int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version())
	assert.Equal(t, "final", got.Get("title"))
}

func TestVersion_DateTimeField(t *testing.T) {
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	cmd := &ClassMeta{
		Name:    "Note",
		Version: &VersionMeta{Strategy: VersionDateTime, Field: "updated"},
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldInt64, PrimaryKey: true},
			{Name: "updated", Type: FieldDate},
		},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)
	store := New(&memAdapter{}, schema, &Config{Logger: quietLogger(), Clock: func() time.Time { return now }})
	defer store.Close()

	note := NewRecord(cmd)
	require.NoError(t, note.Set("id", int64(1)))
	require.NoError(t, store.Insert(note))
	assert.Equal(t, now, note.Get("updated"))

	now = now.Add(time.Hour)
	require.NoError(t, store.Update(note, nil))
	assert.Equal(t, now, note.Version())
	assert.Equal(t, now, note.Get("updated"))

	tm, ok := sheetOf(t, store, "Note").Row(0).Cell(1).Time()
	require.True(t, ok)
	assert.True(t, now.Equal(tm))
}

func TestNondurable_UpdateLocatesByOriginalValues(t *testing.T) {
	store, _ := newTestStore(t, nil)
	session := NewSession(store)
	cmd := class(t, store, "LogEntry")

	var entries []*Record
	for i, msg := range []string{"boot", "ready"} {
		e := NewRecord(cmd)
		require.NoError(t, e.Set("msg", msg))
		require.NoError(t, e.Set("level", i))
		require.NoError(t, session.Persist(e))
		entries = append(entries, e)
	}

	require.NoError(t, entries[1].Set("msg", "serving"))
	require.NoError(t, session.Flush())

	sheet := sheetOf(t, store, "LogEntry")
	assert.Equal(t, "boot", cellText(t, sheet, 0, 0))
	assert.Equal(t, "serving", cellText(t, sheet, 1, 0))

	got, err := NewSession(store).Query("LogEntry", Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "serving", got[1].Get("msg"))
}

func TestReadOnlyClass(t *testing.T) {
	cmd := &ClassMeta{
		Name:     "Code",
		ReadOnly: true,
		Fields:   []*FieldMeta{{Name: "id", Type: FieldString, PrimaryKey: true}},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)
	store := New(&memAdapter{}, schema, &Config{Logger: quietLogger()})
	defer store.Close()

	r := NewRecord(cmd)
	require.NoError(t, r.Set("id", "x"))
	assert.True(t, errors.Is(store.Insert(r), ErrReadOnly))
}

func TestUnsupportedMapping(t *testing.T) {
	type opaque struct{ n int }
	cmd := &ClassMeta{
		Name: "Blob",
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldString, PrimaryKey: true},
			{Name: "payload", Type: FieldObject, TypeName: "opaque"},
			{Name: "ttl", Type: FieldObject, TypeName: "duration", NumericColumn: true},
		},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)

	var logs bytes.Buffer
	store := New(&memAdapter{}, schema, &Config{Logger: bufferLogger(&logs)})
	defer store.Close()

	r := NewRecord(cmd)
	require.NoError(t, r.Set("id", "x"))
	require.NoError(t, r.Set("payload", opaque{n: 1}))
	require.NoError(t, r.Set("ttl", 90*time.Second))
	require.NoError(t, store.Insert(r))
	assert.Contains(t, logs.String(), "field mapping not supported")

	ttl := sheetOf(t, store, "Blob").Row(0).Cell(2)
	require.NotNil(t, ttl)
	assert.Equal(t, CellNumeric, ttl.Kind())

	got := NewRecord(cmd)
	require.NoError(t, got.Set("id", "x"))
	require.NoError(t, store.Fetch(got, []int{2}))
	assert.Equal(t, 90*time.Second, got.Get("ttl"))

	strict := New(&memAdapter{}, schema, &Config{Logger: quietLogger(), StrictMapping: true})
	defer strict.Close()
	err = strict.Insert(r)
	assert.True(t, errors.Is(err, ErrUnsupportedMapping))

	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "payload", me.Field)
}

func TestInsert_FailureDiscardsRow(t *testing.T) {
	cmd := &ClassMeta{
		Name:    "Ledger",
		Version: &VersionMeta{Strategy: VersionStrategy(9)},
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldString, PrimaryKey: true},
			{Name: "amount", Type: FieldInt64},
		},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)
	store := New(&memAdapter{}, schema, &Config{Logger: quietLogger()})
	defer store.Close()

	r := NewRecord(cmd)
	require.NoError(t, r.Set("id", "l1"))
	require.NoError(t, r.Set("amount", int64(100)))
	assert.ErrorContains(t, store.Insert(r), "unsupported version strategy")

	count, err := store.ActiveRowCount(cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, errors.Is(store.Locate(r), ErrNotFound))
}

func TestUnsupportedConverterDatastoreType(t *testing.T) {
	cmd := &ClassMeta{
		Name: "Drawing",
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldString, PrimaryKey: true},
			{Name: "outline", Type: FieldObject, TypeName: "shape"},
		},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)
	converters := NewConverters()
	passThrough := func(v any) (any, error) { return v, nil }
	converters.RegisterString("shape", &FuncConverter{Type: FieldObject, To: passThrough, From: passThrough})

	var logs bytes.Buffer
	store := New(&memAdapter{}, schema, &Config{Logger: bufferLogger(&logs), Converters: converters})
	defer store.Close()

	r := NewRecord(cmd)
	require.NoError(t, r.Set("id", "d1"))
	require.NoError(t, r.Set("outline", []int{1, 2, 3}))
	require.NoError(t, store.Insert(r))
	assert.Contains(t, logs.String(), "field mapping not supported")
	row := sheetOf(t, store, "Drawing").Row(0)
	require.NotNil(t, row)
	assert.Nil(t, row.Cell(1))

	strict := New(&memAdapter{}, schema, &Config{Logger: quietLogger(), Converters: converters, StrictMapping: true})
	defer strict.Close()
	err = strict.Insert(r)
	assert.True(t, errors.Is(err, ErrUnsupportedMapping))
}

func TestMultiColumnConverterRoundTrip(t *testing.T) {
	converters := NewConverters()
	converters.Register("point", pointConverter{})
	cmd := &ClassMeta{
		Name: "Shape",
		Fields: []*FieldMeta{
			{Name: "id", Type: FieldString, PrimaryKey: true},
			{Name: "origin", Converter: "point"},
		},
	}
	schema, err := NewSchema(cmd)
	require.NoError(t, err)
	store := New(&memAdapter{}, schema, &Config{Logger: quietLogger(), Converters: converters})
	defer store.Close()

	r := NewRecord(cmd)
	require.NoError(t, r.Set("id", "s1"))
	require.NoError(t, r.Set("origin", [2]int{3, 4}))
	require.NoError(t, store.Insert(r))

	row := sheetOf(t, store, "Shape").Row(0)
	assert.Equal(t, "3", row.Cell(1).String())
	assert.Equal(t, "4", row.Cell(2).String())

	got := NewRecord(cmd)
	require.NoError(t, got.Set("id", "s1"))
	require.NoError(t, store.Fetch(got, []int{1}))
	assert.Equal(t, [2]int{3, 4}, got.Get("origin"))

	require.NoError(t, r.Set("origin", nil))
	require.NoError(t, store.Update(r, []int{1}))
	assert.Nil(t, row.Cell(1))
	assert.Nil(t, row.Cell(2))
}
