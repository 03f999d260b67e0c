package sheetstore

import (
	"fmt"
	"time"
)

// nextVersion returns the version following current. Number versions count
// up from 1, date-time versions take the clock.
func nextVersion(vm *VersionMeta, current any, clock func() time.Time) (any, error) {
	switch vm.Strategy {
	case VersionNumber:
		if current == nil {
			return int64(1), nil
		}
		n, ok := toInt64(current)
		if !ok {
			return nil, fmt.Errorf("version %v (%T) is not a number", current, current)
		}
		return n + 1, nil
	case VersionDateTime:
		return clock().UTC(), nil
	}
	return nil, fmt.Errorf("unsupported version strategy %d", vm.Strategy)
}

// versionFieldValue narrows a version to the Go type of the version field
func versionFieldValue(f *FieldMeta, v any) any {
	if t, ok := v.(time.Time); ok {
		if f.Type == FieldCalendar {
			return t.Local()
		}
		return t
	}
	n, ok := toInt64(v)
	if !ok {
		return v
	}
	switch f.Type {
	case FieldInt:
		return int(n)
	case FieldInt32:
		return int32(n)
	case FieldInt16:
		return int16(n)
	case FieldInt8:
		return int8(n)
	case FieldFloat64:
		return float64(n)
	}
	return n
}

// readVersion restores a version from its cell
func readVersion(vm *VersionMeta, cell *Cell) any {
	if cell == nil {
		return nil
	}
	switch vm.Strategy {
	case VersionNumber:
		if cell.Kind() != CellNumeric {
			return nil
		}
		f, _ := cell.Number()
		return int64(f)
	case VersionDateTime:
		if t, ok := cell.Time(); ok {
			return t
		}
	}
	return nil
}
