package sheetstore

import (
	"errors"
	"fmt"
)

// fetchFieldManager reads field values for a managed object out of the
// cells of its row
type fetchFieldManager struct {
	h     *persistenceHandler
	sm    StateManager
	cmd   *ClassMeta
	row   *Row
	table *Table
	path  []*FieldMeta
}

func newFetchFieldManager(h *persistenceHandler, sm StateManager, row *Row, table *Table) *fetchFieldManager {
	return &fetchFieldManager{h: h, sm: sm, cmd: sm.ClassMeta(), row: row, table: table}
}

func (m *fetchFieldManager) child(sm StateManager, owner *FieldMeta) *fetchFieldManager {
	return &fetchFieldManager{
		h:     m.h,
		sm:    sm,
		cmd:   sm.ClassMeta(),
		row:   m.row,
		table: m.table,
		path:  append(append([]*FieldMeta{}, m.path...), owner),
	}
}

// FetchField implements FieldSupplier
func (m *fetchFieldManager) FetchField(n int) (any, error) {
	f := m.cmd.Field(n)
	if f == nil {
		return nil, fmt.Errorf("%w: field %d of class %s", ErrInvalidColumnSlot, n, m.cmd.Name)
	}
	mapping := m.table.EmbeddedMapping(m.path, f)
	if mapping == nil {
		return nil, newMappingError(m.cmd, f, fmt.Errorf("%w: no column mapping", ErrUnsupportedMapping))
	}

	if f.Embedded != nil {
		if f.Relation.MultiValued() {
			return nil, newMappingError(m.cmd, f, ErrUnsupportedEmbedded)
		}
		return m.fetchEmbedded(n, f, mapping)
	}

	switch f.Relation {
	case RelationNone:
		return m.fetchPlain(f, mapping)
	case RelationOne:
		return m.fetchReference(f, mapping)
	case RelationMap:
		return m.fetchMap(n, f, mapping)
	default:
		return m.fetchReferences(n, f, mapping)
	}
}

func (m *fetchFieldManager) fetchEmbedded(n int, f *FieldMeta, mapping *ColumnMapping) (any, error) {
	present := false
	for _, col := range mapping.Columns {
		if m.row.Cell(col) != nil {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}
	var emb StateManager
	if ctx := m.sm.Context(); ctx != nil {
		emb = ctx.NewEmbedded(f.Embedded, m.sm, n)
	} else {
		emb = NewRecord(f.Embedded)
	}
	if err := emb.ReplaceFields(f.Embedded.AllFieldNumbers(), m.child(emb, f)); err != nil {
		return nil, err
	}
	return emb, nil
}

// readFailure routes a cell that cannot be read as the declared type
// through the unsupported-mapping policy
func (m *fetchFieldManager) readFailure(f *FieldMeta, err error) (any, error) {
	if errors.Is(err, errCellKind) {
		return nil, m.h.unsupported(m.cmd, f, "fetch", err)
	}
	return nil, newMappingError(m.cmd, f, err)
}

func (m *fetchFieldManager) fetchPlain(f *FieldMeta, mapping *ColumnMapping) (any, error) {
	if mc, ok := mapping.MultiColumn(); ok {
		types := mc.ColumnTypes()
		vals := make([]any, len(types))
		present := false
		for i, col := range mapping.Columns {
			cell := m.row.Cell(col)
			if cell == nil {
				continue
			}
			v, _, err := readCell(cell, types[i], nil)
			if err != nil {
				return m.readFailure(f, err)
			}
			vals[i] = v
			present = present || v != nil
		}
		if !present {
			return nil, nil
		}
		v, err := mc.ToMember(vals)
		if err != nil {
			return nil, newMappingError(m.cmd, f, err)
		}
		return v, nil
	}

	cell := m.row.Cell(mapping.Column(0))
	if cell == nil {
		return nil, nil
	}

	if conv := mapping.Converter; conv != nil {
		ds, _, err := readCell(cell, conv.DatastoreType(), nil)
		if err != nil {
			return m.readFailure(f, err)
		}
		if ds == nil {
			return nil, nil
		}
		v, err := conv.ToMember(ds)
		if err != nil {
			return nil, newMappingError(m.cmd, f, err)
		}
		return v, nil
	}

	v, handled, err := readCell(cell, f.Type, f.Enum)
	if err != nil {
		return m.readFailure(f, err)
	}
	if handled {
		return v, nil
	}

	converters := m.h.cfg.Converters
	var conv TypeConverter
	var ds any
	switch cell.Kind() {
	case CellNumeric:
		conv = converters.LongFor(f.TypeName)
		num, _ := cell.Number()
		ds = int64(num)
	case CellString:
		conv = converters.StringFor(f.TypeName)
		ds, _ = cell.Text()
	}
	if conv == nil {
		return nil, m.h.unsupported(m.cmd, f, "fetch", fmt.Errorf("no converter for type %q from %s cell", f.TypeName, cell.Kind()))
	}
	v, err = conv.ToMember(ds)
	if err != nil {
		return nil, newMappingError(m.cmd, f, err)
	}
	return v, nil
}

func (m *fetchFieldManager) context(f *FieldMeta) (ObjectContext, error) {
	ctx := m.sm.Context()
	if ctx == nil {
		return nil, newMappingError(m.cmd, f, ErrNoContext)
	}
	return ctx, nil
}

// resolve finds the object behind a token. A dangling token yields
// (nil, false) unless strict references are configured.
func (m *fetchFieldManager) resolve(ctx ObjectContext, f *FieldMeta, token, target string) (any, bool, error) {
	obj, err := ctx.FindObject(token, target)
	if err == nil {
		return obj, true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, false, m.h.dangling(m.cmd, f, token)
	}
	return nil, false, err
}

func (m *fetchFieldManager) referenceText(mapping *ColumnMapping) (string, bool) {
	cell := m.row.Cell(mapping.Column(0))
	if cell == nil {
		return "", false
	}
	s, ok := cell.Text()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (m *fetchFieldManager) fetchReference(f *FieldMeta, mapping *ColumnMapping) (any, error) {
	s, ok := m.referenceText(mapping)
	if !ok {
		return nil, nil
	}
	token, ok := ParseReference(s)
	if !ok {
		return nil, nil
	}
	ctx, err := m.context(f)
	if err != nil {
		return nil, err
	}
	obj, _, err := m.resolve(ctx, f, token, f.Target)
	return obj, err
}

func (m *fetchFieldManager) fetchReferences(n int, f *FieldMeta, mapping *ColumnMapping) (any, error) {
	s, ok := m.referenceText(mapping)
	if !ok {
		return nil, nil
	}
	tokens, err := ParseReferenceList(s)
	if err != nil {
		return nil, newMappingError(m.cmd, f, err)
	}
	ctx, err := m.context(f)
	if err != nil {
		return nil, err
	}
	elems := make([]any, 0, len(tokens))
	changed := false
	for _, token := range tokens {
		obj, found, err := m.resolve(ctx, f, token, f.Target)
		if err != nil {
			return nil, err
		}
		if !found {
			changed = true
			continue
		}
		elems = append(elems, obj)
	}
	if f.Ordering != "" && f.Ordering != "#PK" {
		if err := orderElements(elems, f.Ordering); err != nil {
			return nil, newMappingError(m.cmd, f, err)
		}
	}
	if changed {
		m.sm.MakeDirty(n)
	}
	return elems, nil
}

func (m *fetchFieldManager) fetchMap(n int, f *FieldMeta, mapping *ColumnMapping) (any, error) {
	s, ok := m.referenceText(mapping)
	if !ok {
		return nil, nil
	}
	pairs, err := ParseReferenceMap(s)
	if err != nil {
		return nil, newMappingError(m.cmd, f, err)
	}
	var ctx ObjectContext
	if f.KeyTarget != "" || f.ValueTarget != "" {
		if ctx, err = m.context(f); err != nil {
			return nil, err
		}
	}
	entries := make([]MapEntry, 0, len(pairs))
	changed := false
	for _, p := range pairs {
		key, found, err := m.mapComponent(ctx, f, f.KeyTarget, f.KeyType, p[0])
		if err != nil {
			return nil, err
		}
		if !found {
			changed = true
			continue
		}
		val, found, err := m.mapComponent(ctx, f, f.ValueTarget, f.ValueType, p[1])
		if err != nil {
			return nil, err
		}
		if !found {
			changed = true
			continue
		}
		entries = append(entries, MapEntry{Key: key, Value: val})
	}
	if changed {
		m.sm.MakeDirty(n)
	}
	return entries, nil
}

func (m *fetchFieldManager) mapComponent(ctx ObjectContext, f *FieldMeta, target string, typ FieldType, raw string) (any, bool, error) {
	if target != "" {
		return m.resolve(ctx, f, raw, target)
	}
	v, err := ParseKey(raw, typ)
	if err != nil {
		return nil, false, newMappingError(m.cmd, f, fmt.Errorf("map component %q: %w", raw, err))
	}
	return v, true, nil
}
