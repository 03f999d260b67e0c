// Package adaptertest runs the same persistence scenarios against any
// sheetstore.Adapter. Backend packages call Run from their tests.
package adaptertest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ideamans/go-sheetstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an adapter over a fresh, empty document
type Factory func(t *testing.T) sheetstore.Adapter

var (
	authorClass = &sheetstore.ClassMeta{
		Name:     "Author",
		Identity: sheetstore.IdentityDatastore,
		Fields: []*sheetstore.FieldMeta{
			{Name: "name", Type: sheetstore.FieldString},
		},
	}
	bookClass = &sheetstore.ClassMeta{
		Name:  "Book",
		Table: "Books",
		Fields: []*sheetstore.FieldMeta{
			{Name: "isbn", Type: sheetstore.FieldString, PrimaryKey: true},
			{Name: "title", Type: sheetstore.FieldString},
			{Name: "pages", Type: sheetstore.FieldInt},
			{Name: "price", Type: sheetstore.FieldFloat64},
			{Name: "in_print", Type: sheetstore.FieldBool},
			{Name: "published", Type: sheetstore.FieldDate},
			{Name: "genre", Type: sheetstore.FieldEnum, Enum: &sheetstore.EnumMeta{Values: []string{"FICTION", "SCIENCE"}}},
			{Name: "author", Type: sheetstore.FieldObject, Relation: sheetstore.RelationOne, Target: "Author", CascadePersist: true},
		},
	}
)

func newSchema(t *testing.T) *sheetstore.Schema {
	schema, err := sheetstore.NewSchema(authorClass, bookClass)
	require.NoError(t, err)
	return schema
}

// CreateTestStore opens a store over the adapter without periodic sync
func CreateTestStore(t *testing.T, adapter sheetstore.Adapter) *sheetstore.Store {
	t.Helper()
	store := sheetstore.New(adapter, newSchema(t), &sheetstore.Config{
		MaxRetries:    3,
		RetryInterval: 10 * time.Millisecond,
	})
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

// CleanupStore syncs and closes the store
func CleanupStore(t *testing.T, store *sheetstore.Store) {
	t.Helper()
	assert.NoError(t, store.Sync())
	assert.NoError(t, store.Close())
}

// Run exercises the adapter through a store: every scenario starts from an
// empty document and reopens the store to read back what was written.
func Run(t *testing.T, newAdapter Factory) {
	scenarios := []struct {
		name string
		fn   func(t *testing.T, adapter sheetstore.Adapter)
	}{
		{"BasicCRUD", testBasicCRUD},
		{"DataTypes", testDataTypes},
		{"QueryOperations", testQueryOperations},
		{"LargeDataSet", testLargeDataSet},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			adapter := newAdapter(t)
			require.NoError(t, adapter.Save(context.Background(), sheetstore.NewWorkbook()))
			sc.fn(t, adapter)
		})
	}
}

func newBook(isbn, title string, pages int) *sheetstore.Record {
	r := sheetstore.NewRecord(bookClass)
	r.Set("isbn", isbn)
	r.Set("title", title)
	r.Set("pages", pages)
	return r
}

func testBasicCRUD(t *testing.T, adapter sheetstore.Adapter) {
	store := CreateTestStore(t, adapter)
	session := sheetstore.NewSession(store)
	for i, title := range []string{"Solaris", "Kindred", "Dune"} {
		require.NoError(t, session.Persist(newBook(fmt.Sprintf("isbn-%d", i), title, 200+i)))
	}
	CleanupStore(t, store)

	store = CreateTestStore(t, adapter)
	session = sheetstore.NewSession(store)
	book, err := session.Find("Book", "isbn-1")
	require.NoError(t, err)
	assert.Equal(t, "Kindred", book.Get("title"))
	assert.Equal(t, 201, book.Get("pages"))

	require.NoError(t, book.Set("pages", 264))
	require.NoError(t, session.Flush())

	first, err := session.Find("Book", "isbn-0")
	require.NoError(t, err)
	require.NoError(t, session.Delete(first))
	CleanupStore(t, store)

	store = CreateTestStore(t, adapter)
	defer CleanupStore(t, store)
	session = sheetstore.NewSession(store)

	count, err := store.ActiveRowCount(bookClass)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	book, err = session.Find("Book", "isbn-1")
	require.NoError(t, err)
	assert.Equal(t, 264, book.Get("pages"))

	_, err = session.Find("Book", "isbn-0")
	assert.ErrorIs(t, err, sheetstore.ErrNotFound)
}

func testDataTypes(t *testing.T, adapter sheetstore.Adapter) {
	published := time.Date(1969, 3, 1, 0, 0, 0, 0, time.UTC)

	store := CreateTestStore(t, adapter)
	session := sheetstore.NewSession(store)
	author := sheetstore.NewRecord(authorClass)
	require.NoError(t, author.Set("name", "Ursula K. Le Guin"))
	book := newBook("978-0441478125", "The Left Hand of Darkness", 304)
	require.NoError(t, book.Set("price", 9.99))
	require.NoError(t, book.Set("in_print", true))
	require.NoError(t, book.Set("published", published))
	require.NoError(t, book.Set("genre", "FICTION"))
	require.NoError(t, book.Set("author", author))
	require.NoError(t, session.Persist(book))
	assert.True(t, author.IsPersistent(), "author is persisted by cascade")
	CleanupStore(t, store)

	store = CreateTestStore(t, adapter)
	defer CleanupStore(t, store)
	got, err := sheetstore.NewSession(store).Find("Book", "978-0441478125")
	require.NoError(t, err)

	assert.Equal(t, 304, got.Get("pages"))
	assert.Equal(t, 9.99, got.Get("price"))
	assert.Equal(t, true, got.Get("in_print"))
	assert.True(t, published.Equal(got.GetAsTime("published", time.Time{})), "published %v", got.Get("published"))
	assert.Equal(t, "FICTION", got.Get("genre"))
	require.NotNil(t, got.GetRecord("author"))
	assert.Equal(t, "Ursula K. Le Guin", got.GetRecord("author").Get("name"))
}

func testQueryOperations(t *testing.T, adapter sheetstore.Adapter) {
	store := CreateTestStore(t, adapter)
	session := sheetstore.NewSession(store)
	for i := 0; i < 10; i++ {
		require.NoError(t, session.Persist(newBook(fmt.Sprintf("q-%02d", i), fmt.Sprintf("Volume %d", i), i*100)))
	}
	CleanupStore(t, store)

	store = CreateTestStore(t, adapter)
	defer CleanupStore(t, store)
	session = sheetstore.NewSession(store)

	thick, err := session.Query("Book", sheetstore.Query{Conditions: []sheetstore.Condition{
		{Column: "pages", Operator: ">=", Value: 500},
	}})
	require.NoError(t, err)
	assert.Len(t, thick, 5)

	page, err := session.Query("Book", sheetstore.Query{Offset: 2, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "q-02", page[0].Get("isbn"))

	some, err := session.Query("Book", sheetstore.Query{Conditions: []sheetstore.Condition{
		{Column: "isbn", Operator: "in", Value: []any{"q-01", "q-07", "missing"}},
	}})
	require.NoError(t, err)
	assert.Len(t, some, 2)
}

func testLargeDataSet(t *testing.T, adapter sheetstore.Adapter) {
	const n = 200
	store := CreateTestStore(t, adapter)
	require.NoError(t, store.Begin())
	session := sheetstore.NewSession(store)
	for i := 0; i < n; i++ {
		require.NoError(t, session.Persist(newBook(fmt.Sprintf("bulk-%04d", i), "Bulk", i)))
	}
	require.NoError(t, store.Commit(context.Background()))
	CleanupStore(t, store)

	store = CreateTestStore(t, adapter)
	defer CleanupStore(t, store)
	count, err := store.ActiveRowCount(bookClass)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	last, err := sheetstore.NewSession(store).Find("Book", fmt.Sprintf("bulk-%04d", n-1))
	require.NoError(t, err)
	assert.Equal(t, n-1, last.Get("pages"))
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding the
// environment. Escaped newlines in values are expanded, so service account
// keys fit on one line.
func LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		value = strings.ReplaceAll(value, `\n`, "\n")
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
