package sheetstore

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TypeConverter maps a member value to a single datastore value and back
type TypeConverter interface {
	ToDatastore(member any) (any, error)
	ToMember(datastore any) (any, error)
	// DatastoreType is the storage type the converted value is written as
	DatastoreType() FieldType
}

// MultiColumnConverter maps a member value to several consecutive columns.
// ToDatastore returns []any and ToMember receives []any, one entry per column.
type MultiColumnConverter interface {
	TypeConverter
	ColumnTypes() []FieldType
}

// FuncConverter adapts a pair of functions to TypeConverter
type FuncConverter struct {
	Type FieldType
	To   func(member any) (any, error)
	From func(datastore any) (any, error)
}

func (c *FuncConverter) ToDatastore(member any) (any, error) { return c.To(member) }
func (c *FuncConverter) ToMember(datastore any) (any, error) { return c.From(datastore) }
func (c *FuncConverter) DatastoreType() FieldType            { return c.Type }

// Converters holds named converters plus the per-type fallback converters
// used for member types the codec does not handle natively
type Converters struct {
	mu      sync.RWMutex
	named   map[string]TypeConverter
	strings map[string]TypeConverter
	longs   map[string]TypeConverter
}

// NewConverters creates a registry preloaded with the built-in fallback
// converters for "duration", "url" and "uuid" members
func NewConverters() *Converters {
	c := &Converters{
		named:   make(map[string]TypeConverter),
		strings: make(map[string]TypeConverter),
		longs:   make(map[string]TypeConverter),
	}
	c.RegisterLong("duration", durationConverter)
	c.RegisterString("duration", &FuncConverter{
		Type: FieldString,
		To: func(m any) (any, error) {
			d, ok := m.(time.Duration)
			if !ok {
				return nil, fmt.Errorf("expected time.Duration, got %T", m)
			}
			return d.String(), nil
		},
		From: func(v any) (any, error) {
			s, _ := v.(string)
			return time.ParseDuration(s)
		},
	})
	c.RegisterString("url", urlConverter)
	c.RegisterString("uuid", uuidConverter)
	return c
}

// Register adds a named converter referenced by FieldMeta.Converter
func (c *Converters) Register(name string, conv TypeConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.named[name] = conv
}

// RegisterString adds a member-type to string fallback converter
func (c *Converters) RegisterString(typeName string, conv TypeConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings[typeName] = conv
}

// RegisterLong adds a member-type to int64 fallback converter
func (c *Converters) RegisterLong(typeName string, conv TypeConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.longs[typeName] = conv
}

// Named returns the converter registered under name
func (c *Converters) Named(name string) (TypeConverter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.named[name]
	return conv, ok
}

// StringFor returns the string fallback converter for a member type
func (c *Converters) StringFor(typeName string) TypeConverter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strings[typeName]
}

// LongFor returns the int64 fallback converter for a member type
func (c *Converters) LongFor(typeName string) TypeConverter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.longs[typeName]
}

var durationConverter = &FuncConverter{
	Type: FieldInt64,
	To: func(m any) (any, error) {
		d, ok := m.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("expected time.Duration, got %T", m)
		}
		return int64(d), nil
	},
	From: func(v any) (any, error) {
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
		return time.Duration(n), nil
	},
}

var urlConverter = &FuncConverter{
	Type: FieldString,
	To: func(m any) (any, error) {
		switch u := m.(type) {
		case *url.URL:
			return u.String(), nil
		case url.URL:
			return u.String(), nil
		}
		return nil, fmt.Errorf("expected *url.URL, got %T", m)
	},
	From: func(v any) (any, error) {
		s, _ := v.(string)
		return url.Parse(s)
	},
}

var uuidConverter = &FuncConverter{
	Type: FieldString,
	To: func(m any) (any, error) {
		id, ok := m.(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("expected uuid.UUID, got %T", m)
		}
		return id.String(), nil
	},
	From: func(v any) (any, error) {
		s, _ := v.(string)
		return uuid.Parse(s)
	},
}
