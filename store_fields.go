package sheetstore

import (
	"fmt"
	"strings"
)

// storeFieldManager writes the fields provided by a managed object into the
// cells of its row. Embedded objects are written by a child manager that
// shares the row and carries the embedding path.
type storeFieldManager struct {
	h      *persistenceHandler
	sm     StateManager
	cmd    *ClassMeta
	row    *Row
	table  *Table
	insert bool
	path   []*FieldMeta
}

func newStoreFieldManager(h *persistenceHandler, sm StateManager, row *Row, table *Table, insert bool) *storeFieldManager {
	m := &storeFieldManager{
		h:      h,
		sm:     sm,
		cmd:    sm.ClassMeta(),
		row:    row,
		table:  table,
		insert: insert,
	}
	if insert {
		// identity cells exist before any field is written so the row
		// counts as active even when a later field fails
		switch m.cmd.Identity {
		case IdentityApplication:
			for _, n := range m.cmd.PKFieldNumbers() {
				for _, col := range table.Mapping(n).Columns {
					row.CreateCell(col)
				}
			}
		case IdentityDatastore:
			row.CreateCell(table.DatastoreIDColumn())
		}
	}
	return m
}

func (m *storeFieldManager) child(sm StateManager, owner *FieldMeta) *storeFieldManager {
	return &storeFieldManager{
		h:      m.h,
		sm:     sm,
		cmd:    sm.ClassMeta(),
		row:    m.row,
		table:  m.table,
		insert: m.insert,
		path:   append(append([]*FieldMeta{}, m.path...), owner),
	}
}

func (m *storeFieldManager) isStorable(f *FieldMeta) bool {
	if m.insert {
		return !f.NoInsert
	}
	return !f.NoUpdate
}

func (m *storeFieldManager) mapping(f *FieldMeta) *ColumnMapping {
	return m.table.EmbeddedMapping(m.path, f)
}

// StoreField implements FieldConsumer
func (m *storeFieldManager) StoreField(n int, value any) error {
	f := m.cmd.Field(n)
	if f == nil {
		return fmt.Errorf("%w: field %d of class %s", ErrInvalidColumnSlot, n, m.cmd.Name)
	}
	if !m.isStorable(f) {
		return nil
	}
	mapping := m.mapping(f)
	if mapping == nil {
		return newMappingError(m.cmd, f, fmt.Errorf("%w: no column mapping", ErrUnsupportedMapping))
	}

	if f.Embedded != nil {
		if f.Relation.MultiValued() {
			return newMappingError(m.cmd, f, ErrUnsupportedEmbedded)
		}
		return m.storeEmbedded(f, mapping, value)
	}

	switch f.Relation {
	case RelationNone:
		return m.storePlain(f, mapping, value)
	case RelationOne:
		return m.storeReference(n, f, mapping, value)
	default:
		return m.storeReferences(n, f, mapping, value)
	}
}

func (m *storeFieldManager) storeEmbedded(f *FieldMeta, mapping *ColumnMapping, value any) error {
	if value == nil {
		// every leaf column of the embedded object, nested ones included
		for _, col := range mapping.Columns {
			m.row.RemoveCell(col)
		}
		return nil
	}
	emb, ok := value.(StateManager)
	if !ok {
		return newMappingError(m.cmd, f, fmt.Errorf("%w: embedded value %T is not managed", ErrUnsupportedMapping, value))
	}
	return emb.ProvideFields(f.Embedded.AllFieldNumbers(), m.child(emb, f))
}

func (m *storeFieldManager) storePlain(f *FieldMeta, mapping *ColumnMapping, value any) error {
	if mc, ok := mapping.MultiColumn(); ok {
		if value == nil {
			for _, col := range mapping.Columns {
				m.row.RemoveCell(col)
			}
			return nil
		}
		ds, err := mc.ToDatastore(value)
		if err != nil {
			return newMappingError(m.cmd, f, err)
		}
		vals, ok := ds.([]any)
		types := mc.ColumnTypes()
		if !ok || len(vals) != len(types) {
			return newMappingError(m.cmd, f, fmt.Errorf("converter returned %T, want %d values", ds, len(types)))
		}
		for i, col := range mapping.Columns {
			if vals[i] == nil {
				m.row.RemoveCell(col)
				continue
			}
			handled, err := writeCell(m.row.CreateCell(col), vals[i], types[i], nil)
			if err != nil {
				return newMappingError(m.cmd, f, err)
			}
			if !handled {
				if err := m.h.unsupported(m.cmd, f, "store", fmt.Errorf("column type %s", types[i])); err != nil {
					return err
				}
			}
		}
		return nil
	}

	col := mapping.Column(0)
	if value == nil {
		m.row.RemoveCell(col)
		return nil
	}
	cell := m.row.CreateCell(col)

	if conv := mapping.Converter; conv != nil {
		ds, err := conv.ToDatastore(value)
		if err != nil {
			return newMappingError(m.cmd, f, err)
		}
		if ds == nil {
			m.row.RemoveCell(col)
			return nil
		}
		handled, err := writeCell(cell, ds, conv.DatastoreType(), nil)
		if err != nil {
			return newMappingError(m.cmd, f, err)
		}
		if !handled {
			m.row.RemoveCell(col)
			return m.h.unsupported(m.cmd, f, "store", fmt.Errorf("converter datastore type %s", conv.DatastoreType()))
		}
		return nil
	}

	handled, err := writeCell(cell, value, f.Type, f.Enum)
	if err != nil {
		return newMappingError(m.cmd, f, err)
	}
	if handled {
		return nil
	}

	// member types without a native cell form go through a registered
	// string or long converter
	converters := m.h.cfg.Converters
	longConv := converters.LongFor(f.TypeName)
	strConv := converters.StringFor(f.TypeName)
	var conv TypeConverter
	switch {
	case f.NumericColumn:
		conv = longConv
	case strConv != nil:
		conv = strConv
	default:
		conv = longConv
	}
	if conv == nil {
		m.row.RemoveCell(col)
		return m.h.unsupported(m.cmd, f, "store", fmt.Errorf("no converter for type %q", f.TypeName))
	}
	ds, err := conv.ToDatastore(value)
	if err != nil {
		return newMappingError(m.cmd, f, err)
	}
	if ds == nil {
		m.row.RemoveCell(col)
		return nil
	}
	handled, err = writeCell(cell, ds, conv.DatastoreType(), nil)
	if err != nil {
		return newMappingError(m.cmd, f, err)
	}
	if !handled {
		m.row.RemoveCell(col)
		return m.h.unsupported(m.cmd, f, "store", fmt.Errorf("converter datastore type %s", conv.DatastoreType()))
	}
	return nil
}

func (m *storeFieldManager) context(f *FieldMeta) (ObjectContext, error) {
	ctx := m.sm.Context()
	if ctx == nil {
		return nil, newMappingError(m.cmd, f, ErrNoContext)
	}
	return ctx, nil
}

func (m *storeFieldManager) checkReachable(ctx ObjectContext, f *FieldMeta, obj any) error {
	if obj == nil || f.CascadePersist || ctx.IsPersistent(obj) {
		return nil
	}
	return &ObjectError{
		Class: m.cmd.Name,
		Op:    "store " + f.Name,
		Err:   fmt.Errorf("%w: field %s holds a transient %s", ErrReachability, f.Name, f.Target),
	}
}

func (m *storeFieldManager) storeReference(n int, f *FieldMeta, mapping *ColumnMapping, value any) error {
	col := mapping.Column(0)
	if value == nil {
		m.row.RemoveCell(col)
		return nil
	}
	ctx, err := m.context(f)
	if err != nil {
		return err
	}
	if err := m.checkReachable(ctx, f, value); err != nil {
		return err
	}
	token, err := ctx.PersistReachable(value, m.sm, n)
	if err != nil {
		return fmt.Errorf("failed to persist %s.%s: %w", m.cmd.Name, f.Name, err)
	}
	m.row.CreateCell(col).SetString(FormatReference(token))
	return nil
}

func (m *storeFieldManager) storeReferences(n int, f *FieldMeta, mapping *ColumnMapping, value any) error {
	col := mapping.Column(0)
	if value == nil {
		m.row.RemoveCell(col)
		return nil
	}
	ctx, err := m.context(f)
	if err != nil {
		return err
	}

	if f.Relation == RelationMap {
		entries, ok := value.([]MapEntry)
		if !ok {
			return newMappingError(m.cmd, f, fmt.Errorf("expected []MapEntry, got %T", value))
		}
		pairs := make([][2]string, 0, len(entries))
		for _, e := range entries {
			k, err := m.mapComponent(ctx, n, f, f.KeyTarget, e.Key)
			if err != nil {
				return err
			}
			v, err := m.mapComponent(ctx, n, f, f.ValueTarget, e.Value)
			if err != nil {
				return err
			}
			pairs = append(pairs, [2]string{k, v})
		}
		m.row.CreateCell(col).SetString(FormatReferenceMap(pairs))
		return nil
	}

	elems, ok := value.([]any)
	if !ok {
		return newMappingError(m.cmd, f, fmt.Errorf("expected []any, got %T", value))
	}
	for _, e := range elems {
		if err := m.checkReachable(ctx, f, e); err != nil {
			return err
		}
	}
	tokens := make([]string, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		token, err := ctx.PersistReachable(e, m.sm, n)
		if err != nil {
			return fmt.Errorf("failed to persist element of %s.%s: %w", m.cmd.Name, f.Name, err)
		}
		tokens = append(tokens, token)
	}
	m.row.CreateCell(col).SetString(FormatReferenceList(tokens))
	return nil
}

// mapComponent renders a map key or value: persistable components become
// identity tokens, plain ones their text form
func (m *storeFieldManager) mapComponent(ctx ObjectContext, n int, f *FieldMeta, target string, v any) (string, error) {
	if target == "" {
		text := FormatKey(v)
		if strings.ContainsAny(text, "[],") {
			return "", newMappingError(m.cmd, f, fmt.Errorf("map component %q contains a reference delimiter", text))
		}
		return text, nil
	}
	token, err := ctx.PersistReachable(v, m.sm, n)
	if err != nil {
		return "", fmt.Errorf("failed to persist map component of %s.%s: %w", m.cmd.Name, f.Name, err)
	}
	return token, nil
}
