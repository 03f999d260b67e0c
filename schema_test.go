package sheetstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const librarySchema = `
classes:
  - name: Book
    table: Books
    version:
      strategy: number
      position: 9
    fields:
      - name: isbn
        primary_key: true
      - name: title
      - name: pages
        type: int
        column: "10"
      - name: genre
        enum: [FICTION, SCIENCE]
      - name: shelf
        embedded: Shelf
      - name: author
        relation: many-to-one
        target: Author
        cascade_persist: true
      - name: tags
        relation: map
        key_type: string
        value_type: long
  - name: Shelf
    embedded_only: true
    fields:
      - name: room
      - name: slot
        type: integer
  - name: Author
    identity: datastore
    datastore_id: uuid
    fields:
      - name: name
  - name: Scan
    parent: Book
    fields:
      - name: dpi
        type: int
`

func TestLoadSchema(t *testing.T) {
	schema, err := LoadSchema(strings.NewReader(librarySchema))
	require.NoError(t, err)

	var names []string
	for _, c := range schema.Classes() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Book", "Shelf", "Author", "Scan"}, names)

	book, ok := schema.Class("Book")
	require.True(t, ok)
	assert.Equal(t, "Books", book.TableName())
	assert.Equal(t, IdentityApplication, book.Identity)
	require.NotNil(t, book.Version)
	assert.Equal(t, VersionNumber, book.Version.Strategy)
	assert.Equal(t, 9, *book.Version.Position)

	isbn := book.Field(0)
	assert.True(t, isbn.PrimaryKey)
	assert.Equal(t, FieldString, isbn.Type)
	assert.Equal(t, "10", book.Field(2).Column)
	assert.Equal(t, FieldInt, book.Field(2).Type)

	genre := book.Field(3)
	assert.Equal(t, FieldEnum, genre.Type)
	assert.Equal(t, 1, genre.Enum.Ordinal("SCIENCE"))

	shelf, _ := schema.Class("Shelf")
	assert.Same(t, shelf, book.Field(4).Embedded)
	assert.Equal(t, FieldInt32, shelf.Field(1).Type)

	author := book.Field(5)
	assert.Equal(t, RelationOne, author.Relation)
	assert.Equal(t, FieldObject, author.Type)
	assert.True(t, author.CascadePersist)

	tags := book.Field(6)
	assert.Equal(t, RelationMap, tags.Relation)
	assert.Equal(t, FieldString, tags.KeyType)
	assert.Equal(t, FieldInt64, tags.ValueType)

	authorClass, _ := schema.Class("Author")
	assert.Equal(t, IdentityDatastore, authorClass.Identity)
	assert.Equal(t, DatastoreIDString, authorClass.DatastoreID)

	scan, _ := schema.Class("Scan")
	assert.Same(t, book, scan.Parent)
	assert.Equal(t, 8, scan.FieldCount())
	assert.Equal(t, 7, scan.FieldNumber("dpi"))
	assert.True(t, scan.IsSubclassOf(book))
}

func TestLoadSchema_DrivesStore(t *testing.T) {
	schema, err := LoadSchema(strings.NewReader(librarySchema))
	require.NoError(t, err)
	store := New(&memAdapter{}, schema, &Config{Logger: quietLogger()})
	defer store.Close()
	session := NewSession(store)

	book, _ := schema.Class("Book")
	table, err := store.Table(book)
	require.NoError(t, err)
	assert.Equal(t, 10, table.Mapping(2).Column(0), "column 10")
	assert.Equal(t, 9, table.VersionColumn())

	authorClass, _ := schema.Class("Author")
	author := NewRecord(authorClass)
	require.NoError(t, author.Set("name", "Le Guin"))

	b := NewRecord(book)
	require.NoError(t, b.Set("isbn", "978-0"))
	require.NoError(t, b.Set("title", "The Dispossessed"))
	require.NoError(t, b.Set("genre", "FICTION"))
	require.NoError(t, b.Set("author", author))
	require.NoError(t, session.Persist(b))
	assert.True(t, author.IsPersistent())

	got, err := NewSession(store).Find("Book", "978-0")
	require.NoError(t, err)
	assert.Equal(t, "The Dispossessed", got.Get("title"))
	assert.Equal(t, "Le Guin", got.GetRecord("author").Get("name"))
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(librarySchema), 0o644))

	schema, err := LoadSchemaFile(path)
	require.NoError(t, err)
	_, ok := schema.Class("Scan")
	assert.True(t, ok)

	_, err = LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "classes:\n  - name: A\n    colour: red\n", "colour"},
		{"unknown identity", "classes:\n  - name: A\n    identity: magic\n", "unknown identity"},
		{"unknown relation", "classes:\n  - name: A\n    fields:\n      - name: id\n        primary_key: true\n      - name: b\n        relation: graph\n", "unknown relation"},
		{"unknown type", "classes:\n  - name: A\n    fields:\n      - name: id\n        type: quaternion\n", "unknown field type"},
		{"unknown parent", "classes:\n  - name: A\n    parent: Z\n    identity: nondurable\n", "unknown parent"},
		{"unknown embedded", "classes:\n  - name: A\n    identity: nondurable\n    fields:\n      - name: e\n        embedded: Z\n", "embeds unknown class"},
		{"duplicate class", "classes:\n  - name: A\n    identity: nondurable\n  - name: A\n    identity: nondurable\n", "declared twice"},
		{"parent cycle", "classes:\n  - name: A\n    parent: B\n    identity: nondurable\n  - name: B\n    parent: A\n    identity: nondurable\n", "inheritance cycle"},
		{"missing key", "classes:\n  - name: A\n    fields:\n      - name: x\n", "primary key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchema(strings.NewReader(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
