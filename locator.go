package sheetstore

import (
	"time"
)

// keyCell is one expected cell value of a row lookup
type keyCell struct {
	col   int
	typ   FieldType
	value any
}

// locateRow returns the index of the first row holding the identity of sm,
// or -1. Application identity compares the primary key cells, datastore
// identity the surrogate identity cell, and nondurable classes every plain
// field. With original set, nondurable lookups use the values fields held
// before the current changes.
func locateRow(sheet *Sheet, sm StateManager, table *Table, original bool) (int, error) {
	if sheet == nil {
		return -1, nil
	}
	cmd := sm.ClassMeta()
	var keys []keyCell
	switch cmd.Identity {
	case IdentityApplication:
		for _, n := range cmd.PKFieldNumbers() {
			ks, err := keyCellsFor(table, nil, cmd.Field(n), sm.ProvideField(n))
			if err != nil {
				return -1, err
			}
			keys = append(keys, ks...)
		}
	case IdentityDatastore:
		id := sm.InternalID()
		typ := FieldInt64
		if _, ok := id.(string); ok {
			typ = FieldString
		}
		keys = append(keys, keyCell{col: table.DatastoreIDColumn(), typ: typ, value: id})
	default:
		for n, f := range cmd.AllFields() {
			if f.Relation != RelationNone && f.Embedded == nil {
				continue
			}
			value := sm.ProvideField(n)
			if original {
				if v, ok := sm.OriginalValue(n); ok && v != nil {
					value = v
				}
			}
			ks, err := keyCellsFor(table, nil, f, value)
			if err != nil {
				return -1, err
			}
			keys = append(keys, ks...)
		}
	}

	for _, row := range sheet.Rows() {
		if rowMatches(row, keys) {
			return row.Index(), nil
		}
	}
	return -1, nil
}

// keyCellsFor expands a field into the cells it must match. Embedded
// objects expand into their leaf fields and converted fields compare in
// their datastore representation.
func keyCellsFor(table *Table, path []*FieldMeta, f *FieldMeta, value any) ([]keyCell, error) {
	if f.Embedded != nil && !f.Relation.MultiValued() {
		child := append(append([]*FieldMeta{}, path...), f)
		emb, _ := value.(StateManager)
		var keys []keyCell
		for j, ef := range f.Embedded.AllFields() {
			if ef.Relation != RelationNone && ef.Embedded == nil {
				continue
			}
			var v any
			if emb != nil {
				v = emb.ProvideField(j)
			}
			ks, err := keyCellsFor(table, child, ef, v)
			if err != nil {
				return nil, err
			}
			keys = append(keys, ks...)
		}
		return keys, nil
	}

	m := table.EmbeddedMapping(path, f)
	if m == nil {
		return nil, nil
	}
	if m.Converter == nil {
		return []keyCell{{col: m.Column(0), typ: f.Type, value: value}}, nil
	}
	if value == nil {
		return []keyCell{{col: m.Column(0), typ: m.Converter.DatastoreType()}}, nil
	}
	ds, err := m.Converter.ToDatastore(value)
	if err != nil {
		return nil, err
	}
	if mc, ok := m.MultiColumn(); ok {
		vals, _ := ds.([]any)
		types := mc.ColumnTypes()
		keys := make([]keyCell, 0, len(types))
		for i, typ := range types {
			var v any
			if i < len(vals) {
				v = vals[i]
			}
			keys = append(keys, keyCell{col: m.Column(i), typ: typ, value: v})
		}
		return keys, nil
	}
	return []keyCell{{col: m.Column(0), typ: m.Converter.DatastoreType(), value: ds}}, nil
}

func rowMatches(row *Row, keys []keyCell) bool {
	for _, k := range keys {
		if !cellMatches(row.Cell(k.col), k.typ, k.value) {
			return false
		}
	}
	return true
}

// cellMatches compares a cell against an expected value of the given type.
// An absent cell or value never matches, and types without a comparison
// rule never match.
func cellMatches(cell *Cell, typ FieldType, value any) bool {
	if cell == nil || value == nil {
		return false
	}
	switch typ {
	case FieldString:
		s, ok := cell.Text()
		v, okV := value.(string)
		return ok && okV && cell.Kind() == CellString && s == v
	case FieldInt, FieldInt8, FieldInt16, FieldInt32, FieldInt64:
		if cell.Kind() != CellNumeric {
			return false
		}
		f, _ := cell.Number()
		v, ok := toInt64(value)
		if !ok {
			return false
		}
		switch typ {
		case FieldInt8:
			return int8(f) == int8(v)
		case FieldInt16:
			return int16(f) == int16(v)
		case FieldInt32:
			return int32(f) == int32(v)
		case FieldInt:
			return int(f) == int(v)
		}
		return int64(f) == v
	case FieldFloat32:
		if cell.Kind() != CellNumeric {
			return false
		}
		f, _ := cell.Number()
		v, ok := numberOf(value)
		return ok && float32(f) == float32(v)
	case FieldFloat64:
		if cell.Kind() != CellNumeric {
			return false
		}
		f, _ := cell.Number()
		v, ok := numberOf(value)
		return ok && f == v
	case FieldBool:
		b, ok := cell.Bool()
		v, okV := value.(bool)
		return ok && okV && cell.Kind() == CellBool && b == v
	case FieldChar:
		s, ok := cell.Text()
		if !ok || cell.Kind() != CellString {
			return false
		}
		r := []rune(s)
		var v rune
		switch c := value.(type) {
		case rune:
			v = c
		case string:
			cs := []rune(c)
			if len(cs) == 0 {
				return false
			}
			v = cs[0]
		default:
			return false
		}
		return len(r) > 0 && r[0] == v
	case FieldDate, FieldCalendar:
		t, ok := cell.Time()
		v, okV := value.(time.Time)
		return ok && okV && t.UnixMilli() == v.UnixMilli()
	}
	return false
}
