package sheetstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var errCellKind = errors.New("cell kind does not match field type")

// writeCell stores value into cell using the native representation of typ.
// It reports false when typ has no native representation.
func writeCell(cell *Cell, value any, typ FieldType, enum *EnumMeta) (bool, error) {
	switch typ {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return true, fmt.Errorf("expected string, got %T", value)
		}
		cell.SetString(s)
	case FieldBool:
		b, ok := value.(bool)
		if !ok {
			return true, fmt.Errorf("expected bool, got %T", value)
		}
		cell.SetBool(b)
	case FieldInt, FieldInt8, FieldInt16, FieldInt32, FieldInt64,
		FieldFloat32, FieldFloat64, FieldBigDecimal, FieldBigInteger:
		f, ok := numberOf(value)
		if !ok {
			return true, fmt.Errorf("expected number, got %T", value)
		}
		cell.SetNumber(f)
	case FieldChar:
		switch c := value.(type) {
		case rune:
			cell.SetString(string(c))
		case string:
			r := []rune(c)
			if len(r) == 0 {
				return true, fmt.Errorf("empty string for char field")
			}
			cell.SetString(string(r[0]))
		default:
			return true, fmt.Errorf("expected rune, got %T", value)
		}
	case FieldDate, FieldCalendar:
		t, ok := value.(time.Time)
		if !ok {
			return true, fmt.Errorf("expected time.Time, got %T", value)
		}
		cell.SetDate(t)
	case FieldEnum:
		name, ordinal, err := enumConstant(enum, value)
		if err != nil {
			return true, err
		}
		if enum.Numeric {
			cell.SetNumber(float64(ordinal))
		} else {
			cell.SetString(name)
		}
	case FieldBytes:
		b, ok := value.([]byte)
		if !ok {
			return true, fmt.Errorf("expected []byte, got %T", value)
		}
		cell.SetString(base64.StdEncoding.EncodeToString(b))
	default:
		return false, nil
	}
	return true, nil
}

// readCell converts the cell to a value of typ. It reports false when typ
// has no native representation. Blank cells read as nil.
func readCell(cell *Cell, typ FieldType, enum *EnumMeta) (any, bool, error) {
	if cell.Kind() == CellBlank {
		return nil, true, nil
	}
	switch typ {
	case FieldString:
		s, ok := cell.Text()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		return s, true, nil
	case FieldBool:
		b, ok := cell.Bool()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		return b, true, nil
	case FieldChar:
		s, ok := cell.Text()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		r := []rune(s)
		if len(r) == 0 {
			return nil, true, nil
		}
		return r[0], true, nil
	case FieldDate, FieldCalendar:
		t, ok := cell.Time()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		if typ == FieldCalendar {
			return t.Local(), true, nil
		}
		return t.UTC(), true, nil
	case FieldInt, FieldInt8, FieldInt16, FieldInt32, FieldInt64,
		FieldFloat32, FieldFloat64, FieldBigDecimal, FieldBigInteger:
		f, ok := cell.Number()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		return numberAs(f, typ), true, nil
	case FieldEnum:
		if enum == nil {
			return nil, true, fmt.Errorf("enum field without constants")
		}
		if enum.Numeric {
			f, ok := cell.Number()
			if !ok {
				return nil, true, kindError(cell, typ)
			}
			i := int(f)
			if i < 0 || i >= len(enum.Values) {
				return nil, true, fmt.Errorf("enum ordinal %d out of range", i)
			}
			return enum.Values[i], true, nil
		}
		s, ok := cell.Text()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		if enum.Ordinal(s) < 0 {
			return nil, true, fmt.Errorf("unknown enum constant %q", s)
		}
		return s, true, nil
	case FieldBytes:
		s, ok := cell.Text()
		if !ok {
			return nil, true, kindError(cell, typ)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("failed to decode bytes: %w", err)
		}
		return b, true, nil
	}
	return nil, false, nil
}

func kindError(cell *Cell, typ FieldType) error {
	return fmt.Errorf("%w: %s cell read as %s", errCellKind, cell.Kind(), typ)
}

// numberAs narrows a cell number to the Go type of a numeric field
func numberAs(f float64, typ FieldType) any {
	switch typ {
	case FieldInt:
		return int(f)
	case FieldInt8:
		return int8(f)
	case FieldInt16:
		return int16(f)
	case FieldInt32:
		return int32(f)
	case FieldInt64:
		return int64(f)
	case FieldFloat32:
		return float32(f)
	case FieldBigDecimal:
		return big.NewFloat(f)
	case FieldBigInteger:
		n, _ := new(big.Float).SetFloat64(f).Int(nil)
		return n
	}
	return f
}

// numberOf widens any numeric value to float64. Arbitrary precision values
// lose precision beyond what a float64 holds.
func numberOf(v any) (float64, bool) {
	switch val := v.(type) {
	case *big.Float:
		if val == nil {
			return 0, false
		}
		f, _ := val.Float64()
		return f, true
	case *big.Int:
		if val == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return f, true
	}
	if isNumeric(v) {
		return toFloat64(v), true
	}
	return 0, false
}

// toInt64 converts integral values, and floats by truncation
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	case *big.Int:
		if val != nil && val.IsInt64() {
			return val.Int64(), true
		}
	}
	return 0, false
}

// enumConstant resolves a constant given by name or ordinal
func enumConstant(enum *EnumMeta, value any) (string, int, error) {
	if enum == nil {
		return "", 0, fmt.Errorf("enum field without constants")
	}
	if name, ok := value.(string); ok {
		i := enum.Ordinal(name)
		if i < 0 {
			return "", 0, fmt.Errorf("unknown enum constant %q", name)
		}
		return name, i, nil
	}
	if i, ok := toInt64(value); ok {
		if i < 0 || int(i) >= len(enum.Values) {
			return "", 0, fmt.Errorf("enum ordinal %d out of range", i)
		}
		return enum.Values[i], int(i), nil
	}
	return "", 0, fmt.Errorf("expected enum constant, got %T", value)
}
