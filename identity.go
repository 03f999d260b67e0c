package sheetstore

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// IdentityCodec renders object identities as the tokens stored inside
// reference cells. Tokens must not contain '[', ']' or ','.
type IdentityCodec interface {
	Encode(class string, keys []any) string
	Decode(token string) (class string, keys []string, err error)
}

// DefaultIdentityCodec renders "Class:key" with composite keys joined by ';'.
// Reference delimiters inside keys are percent-escaped.
type DefaultIdentityCodec struct{}

var (
	keyEscaper   = strings.NewReplacer("%", "%25", "[", "%5B", "]", "%5D", ",", "%2C", ";", "%3B")
	keyUnescaper = strings.NewReplacer("%25", "%", "%5B", "[", "%5D", "]", "%2C", ",", "%3B", ";")
)

func (DefaultIdentityCodec) Encode(class string, keys []any) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keyEscaper.Replace(FormatKey(k))
	}
	return class + ":" + strings.Join(parts, ";")
}

func (DefaultIdentityCodec) Decode(token string) (string, []string, error) {
	class, rest, ok := strings.Cut(token, ":")
	if !ok || class == "" {
		return "", nil, fmt.Errorf("malformed identity token %q", token)
	}
	keys := strings.Split(rest, ";")
	for i, k := range keys {
		keys[i] = keyUnescaper.Replace(k)
	}
	return class, keys, nil
}

// FormatKey renders a key value as text
func FormatKey(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *big.Float:
		return val.Text('g', -1)
	case *big.Int:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	}
	return fmt.Sprintf("%v", v)
}

// ParseKey converts the text form of a key back to the value of the given type
func ParseKey(raw string, typ FieldType) (any, error) {
	switch typ {
	case FieldString, FieldEnum:
		return raw, nil
	case FieldInt:
		return strconv.Atoi(raw)
	case FieldInt64:
		return strconv.ParseInt(raw, 10, 64)
	case FieldInt32:
		n, err := strconv.ParseInt(raw, 10, 32)
		return int32(n), err
	case FieldInt16:
		n, err := strconv.ParseInt(raw, 10, 16)
		return int16(n), err
	case FieldInt8:
		n, err := strconv.ParseInt(raw, 10, 8)
		return int8(n), err
	case FieldFloat64:
		return strconv.ParseFloat(raw, 64)
	case FieldFloat32:
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	case FieldBool:
		return strconv.ParseBool(raw)
	case FieldChar:
		// chars are rendered by code point since rune and int32 are the same type
		n, err := strconv.ParseInt(raw, 10, 32)
		return rune(n), err
	case FieldDate, FieldCalendar:
		return time.Parse(time.RFC3339Nano, raw)
	case FieldBigInteger:
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer key %q", raw)
		}
		return n, nil
	case FieldBigDecimal:
		f, _, err := big.ParseFloat(raw, 10, 64, big.ToNearestEven)
		return f, err
	}
	return nil, fmt.Errorf("key type %s is not supported", typ)
}
