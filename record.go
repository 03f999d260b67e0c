package sheetstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is a dynamic object of a class. It implements StateManager so the
// store can read and write it field by field.
type Record struct {
	class    *ClassMeta
	values   []any
	loaded   []bool
	original map[int]any
	dirty    map[int]bool
	id       any
	version  any

	session    *Session
	owner      *Record
	ownerField int
	persistent bool
	deleted    bool
}

// NewRecord creates a transient record with every field unset
func NewRecord(cmd *ClassMeta) *Record {
	n := cmd.FieldCount()
	r := &Record{
		class:    cmd,
		values:   make([]any, n),
		loaded:   make([]bool, n),
		original: make(map[int]any),
		dirty:    make(map[int]bool),
	}
	for i := range r.loaded {
		r.loaded[i] = true
	}
	return r
}

// newHollowRecord creates a record whose fields still have to be fetched
func newHollowRecord(cmd *ClassMeta) *Record {
	r := NewRecord(cmd)
	for i := range r.loaded {
		r.loaded[i] = false
	}
	return r
}

// Class returns the class metadata
func (r *Record) Class() *ClassMeta { return r.class }

// ID returns the datastore identity, nil for other identity types
func (r *Record) ID() any { return r.id }

// IsPersistent reports whether the record is stored
func (r *Record) IsPersistent() bool { return r.persistent }

// IsDirty reports whether the record has changes not yet written
func (r *Record) IsDirty() bool { return len(r.dirty) > 0 }

// DirtyFields returns the numbers of the changed fields in ascending order
func (r *Record) DirtyFields() []int {
	nums := make([]int, 0, len(r.dirty))
	for n := range r.dirty {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Has reports whether the class declares the field
func (r *Record) Has(name string) bool {
	return r.class.FieldNumber(name) >= 0
}

// Get returns the value of the named field, nil when unset or unknown
func (r *Record) Get(name string) any {
	n := r.class.FieldNumber(name)
	if n < 0 {
		return nil
	}
	return r.values[n]
}

// Set changes the named field. Changes to persistent records are tracked
// and written by Session.Flush.
func (r *Record) Set(name string, value any) error {
	n := r.class.FieldNumber(name)
	if n < 0 {
		return fmt.Errorf("class %s has no field %s", r.class.Name, name)
	}
	if emb, ok := value.(*Record); ok && r.class.Field(n).Embedded != nil {
		emb.owner = r
		emb.ownerField = n
		emb.session = r.session
	}
	r.markChanged(n)
	r.values[n] = value
	return nil
}

func (r *Record) markChanged(n int) {
	if r.owner != nil {
		r.owner.markChanged(r.ownerField)
	}
	if !r.persistent {
		return
	}
	if _, ok := r.original[n]; !ok {
		r.original[n] = r.values[n]
	}
	r.dirty[n] = true
}

func (r *Record) clearChanges() {
	r.original = make(map[int]any)
	r.dirty = make(map[int]bool)
}

// ClassMeta implements StateManager
func (r *Record) ClassMeta() *ClassMeta { return r.class }

// ProvideField implements StateManager
func (r *Record) ProvideField(n int) any {
	if n < 0 || n >= len(r.values) {
		return nil
	}
	return r.values[n]
}

// ReplaceField implements StateManager
func (r *Record) ReplaceField(n int, value any) {
	if n < 0 || n >= len(r.values) {
		return
	}
	if emb, ok := value.(*Record); ok && r.class.Field(n).Embedded != nil {
		emb.owner = r
		emb.ownerField = n
	}
	r.values[n] = value
	r.loaded[n] = true
}

// ProvideFields implements StateManager
func (r *Record) ProvideFields(nums []int, fc FieldConsumer) error {
	for _, n := range nums {
		if err := fc.StoreField(n, r.ProvideField(n)); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFields implements StateManager
func (r *Record) ReplaceFields(nums []int, fs FieldSupplier) error {
	for _, n := range nums {
		v, err := fs.FetchField(n)
		if err != nil {
			return err
		}
		r.ReplaceField(n, v)
	}
	return nil
}

// OriginalValue implements StateManager
func (r *Record) OriginalValue(n int) (any, bool) {
	v, ok := r.original[n]
	return v, ok
}

// LoadUnloadedFields implements StateManager
func (r *Record) LoadUnloadedFields() error {
	var missing []int
	for n, ok := range r.loaded {
		if !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 || r.session == nil || !r.persistent {
		return nil
	}
	return r.session.store.Fetch(r, missing)
}

// InternalID implements StateManager
func (r *Record) InternalID() any { return r.id }

// SetInternalID implements StateManager
func (r *Record) SetInternalID(id any) { r.id = id }

// Version implements StateManager
func (r *Record) Version() any { return r.version }

// SetVersion implements StateManager
func (r *Record) SetVersion(v any) { r.version = v }

// MakeDirty implements StateManager
func (r *Record) MakeDirty(n int) {
	if r.owner != nil {
		r.owner.MakeDirty(r.ownerField)
		return
	}
	r.dirty[n] = true
}

// Context implements StateManager
func (r *Record) Context() ObjectContext {
	if r.session == nil {
		return nil
	}
	return r.session
}

// GetAsString returns the value as string or defaultValue if not set
func (r *Record) GetAsString(field string, defaultValue string) string {
	v := r.Get(field)
	if v == nil {
		return defaultValue
	}
	if c, ok := v.(rune); ok && r.class.Field(r.class.FieldNumber(field)).Type == FieldChar {
		return string(c)
	}

	switch val := v.(type) {
	case string:
		return val
	case int, int64, float64:
		return fmt.Sprintf("%v", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.Format(time.RFC3339)
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GetAsInt64 returns the value as int64 or defaultValue if not set
func (r *Record) GetAsInt64(field string, defaultValue int64) int64 {
	v := r.Get(field)
	if v == nil {
		return defaultValue
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		return defaultValue
	}
	if i, ok := toInt64(v); ok {
		return i
	}
	return defaultValue
}

// GetAsFloat64 returns the value as float64 or defaultValue if not set
func (r *Record) GetAsFloat64(field string, defaultValue float64) float64 {
	v := r.Get(field)
	if v == nil {
		return defaultValue
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return defaultValue
	}
	if f, ok := numberOf(v); ok {
		return f
	}
	return defaultValue
}

// GetAsBool returns the value as bool or defaultValue if not set
func (r *Record) GetAsBool(field string, defaultValue bool) bool {
	v := r.Get(field)
	if v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1"
	}
	if f, ok := numberOf(v); ok {
		return f != 0
	}
	return defaultValue
}

// GetAsTime returns the value as time.Time or defaultValue if not set
func (r *Record) GetAsTime(field string, defaultValue time.Time) time.Time {
	v := r.Get(field)
	if v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		formats := []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, val); err == nil {
				return t
			}
		}
	}
	return defaultValue
}

// GetRecord returns an embedded or related record, nil if not set
func (r *Record) GetRecord(field string) *Record {
	rec, _ := r.Get(field).(*Record)
	return rec
}

// GetRecords returns the records of a collection or array field
func (r *Record) GetRecords(field string) []*Record {
	elems, _ := r.Get(field).([]any)
	out := make([]*Record, 0, len(elems))
	for _, e := range elems {
		if rec, ok := e.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Values returns the set fields keyed by name. Related records are rendered
// as identity tokens when the record is managed by a session.
func (r *Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for n, f := range r.class.AllFields() {
		v := r.values[n]
		if v == nil {
			continue
		}
		out[f.Name] = r.exportValue(v)
	}
	return out
}

func (r *Record) exportValue(v any) any {
	switch val := v.(type) {
	case *Record:
		if val.owner == r || val.class.EmbeddedOnly {
			return val.Values()
		}
		if r.session != nil {
			if token, err := r.session.Token(val); err == nil {
				return FormatReference(token)
			}
		}
		return val.Values()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = r.exportValue(e)
		}
		return out
	case []MapEntry:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[FormatKey(r.exportValue(e.Key))] = r.exportValue(e.Value)
		}
		return out
	}
	return v
}
