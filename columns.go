package sheetstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Column slots that address surrogate columns instead of fields
const (
	SlotDatastoreID = -1
	SlotVersion     = -2
)

// ColumnMapping binds one field, possibly nested inside embedded objects,
// to its column positions
type ColumnMapping struct {
	Field     *FieldMeta
	Path      []*FieldMeta // embedding owners, outermost first
	Columns   []int
	Converter TypeConverter
}

// Column returns the i-th column of the mapping
func (m *ColumnMapping) Column(i int) int {
	return m.Columns[i]
}

// MultiColumn returns the converter when it spans several columns
func (m *ColumnMapping) MultiColumn() (MultiColumnConverter, bool) {
	if m.Converter == nil {
		return nil, false
	}
	mc, ok := m.Converter.(MultiColumnConverter)
	return mc, ok
}

// Table is the resolved column layout of a class sheet
type Table struct {
	class       *ClassMeta
	top         []*ColumnMapping
	members     map[string]*ColumnMapping
	datastoreID int
	version     int
	width       int
}

// NewTable resolves the column of every managed field of the class. Each
// field takes its explicit position, else its column name read as an index
// or letter, else the next free slot counted across all fields. Surrogate
// identity and version columns follow the last slot unless positioned.
func NewTable(cmd *ClassMeta, converters *Converters) (*Table, error) {
	t := &Table{
		class:   cmd,
		members: make(map[string]*ColumnMapping),
	}
	next := 0
	for _, f := range cmd.AllFields() {
		m, err := t.layout(nil, f, &next, converters)
		if err != nil {
			return nil, fmt.Errorf("failed to lay out %s: %w", cmd.Name, err)
		}
		t.top = append(t.top, m)
	}

	col, ok, err := explicitColumn(cmd.IDPosition, cmd.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out %s identity: %w", cmd.Name, err)
	}
	if !ok {
		col = next
	}
	t.datastoreID = col

	t.version = next + 1
	if v := cmd.Version; v != nil {
		if n := cmd.VersionFieldNumber(); n >= 0 {
			t.version = t.top[n].Columns[0]
		} else {
			col, ok, err := explicitColumn(v.Position, v.Column)
			if err != nil {
				return nil, fmt.Errorf("failed to lay out %s version: %w", cmd.Name, err)
			}
			if ok {
				t.version = col
			}
		}
	}

	t.width = t.version + 1
	if t.datastoreID >= t.width {
		t.width = t.datastoreID + 1
	}
	for _, m := range t.members {
		for _, c := range m.Columns {
			if c >= t.width {
				t.width = c + 1
			}
		}
	}
	return t, nil
}

func (t *Table) layout(path []*FieldMeta, f *FieldMeta, next *int, converters *Converters) (*ColumnMapping, error) {
	m := &ColumnMapping{Field: f, Path: path}
	if f.Converter != "" {
		conv, ok := converters.Named(f.Converter)
		if !ok {
			return nil, fmt.Errorf("field %s: unknown converter %q", f.Name, f.Converter)
		}
		m.Converter = conv
	}

	if f.Embedded != nil && !f.Relation.MultiValued() {
		child := append(append([]*FieldMeta{}, path...), f)
		for _, ef := range f.Embedded.AllFields() {
			cm, err := t.layout(child, ef, next, converters)
			if err != nil {
				return nil, err
			}
			m.Columns = append(m.Columns, cm.Columns...)
		}
		t.members[pathKey(path, f)] = m
		return m, nil
	}

	width := 1
	if mc, ok := m.MultiColumn(); ok {
		width = len(mc.ColumnTypes())
	}
	start, ok, err := explicitColumn(f.Position, f.Column)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	if !ok {
		start = *next
	}
	for i := 0; i < width; i++ {
		m.Columns = append(m.Columns, start+i)
	}
	*next += width
	t.members[pathKey(path, f)] = m
	return m, nil
}

// explicitColumn resolves a declared position or column name to an index.
// A column name counts only when it is an integer; other names leave the
// field on its sequential position.
func explicitColumn(pos *int, column string) (int, bool, error) {
	if pos != nil {
		if *pos < 0 {
			return 0, false, fmt.Errorf("negative position %d", *pos)
		}
		return *pos, true, nil
	}
	if column == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(column))
	if err != nil {
		return 0, false, nil
	}
	if n < 0 {
		return 0, false, fmt.Errorf("negative column %d", n)
	}
	return n, true, nil
}

func pathKey(path []*FieldMeta, f *FieldMeta) string {
	names := make([]string, 0, len(path)+1)
	for _, p := range path {
		names = append(names, p.Name)
	}
	return strings.Join(append(names, f.Name), ".")
}

// Class returns the class the table was resolved for
func (t *Table) Class() *ClassMeta { return t.class }

// Name returns the sheet name
func (t *Table) Name() string { return t.class.TableName() }

// Width returns one past the highest column used
func (t *Table) Width() int { return t.width }

// ColumnFor returns the column of a field number or surrogate slot
func (t *Table) ColumnFor(slot int) (int, error) {
	switch {
	case slot == SlotDatastoreID:
		return t.datastoreID, nil
	case slot == SlotVersion:
		return t.version, nil
	case slot < 0 || slot >= len(t.top):
		return 0, fmt.Errorf("%w: %d for class %s", ErrInvalidColumnSlot, slot, t.class.Name)
	}
	return t.top[slot].Columns[0], nil
}

// Mapping returns the mapping of a top-level field number
func (t *Table) Mapping(n int) *ColumnMapping {
	if n < 0 || n >= len(t.top) {
		return nil
	}
	return t.top[n]
}

// EmbeddedMapping returns the mapping of a field reached through the given
// embedding owners
func (t *Table) EmbeddedMapping(path []*FieldMeta, f *FieldMeta) *ColumnMapping {
	return t.members[pathKey(path, f)]
}

// DatastoreIDColumn returns the surrogate identity column
func (t *Table) DatastoreIDColumn() int { return t.datastoreID }

// VersionColumn returns the version column
func (t *Table) VersionColumn() int { return t.version }
