package sheetstore

import (
	"fmt"
	"strings"
	"sync"
)

// FieldType is the declared storage type of a field
type FieldType int

const (
	FieldObject FieldType = iota
	FieldString
	FieldBool
	FieldInt
	FieldInt8
	FieldInt16
	FieldInt32
	FieldInt64
	FieldFloat32
	FieldFloat64
	FieldBigDecimal
	FieldBigInteger
	FieldChar
	FieldDate
	FieldCalendar
	FieldEnum
	FieldBytes
)

var fieldTypeNames = map[FieldType]string{
	FieldObject:     "object",
	FieldString:     "string",
	FieldBool:       "bool",
	FieldInt:        "int",
	FieldInt8:       "int8",
	FieldInt16:      "int16",
	FieldInt32:      "int32",
	FieldInt64:      "int64",
	FieldFloat32:    "float32",
	FieldFloat64:    "float64",
	FieldBigDecimal: "bigdecimal",
	FieldBigInteger: "biginteger",
	FieldChar:       "char",
	FieldDate:       "date",
	FieldCalendar:   "calendar",
	FieldEnum:       "enum",
	FieldBytes:      "bytes",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// IsNumeric reports whether values of the type are stored as numeric cells
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldInt, FieldInt8, FieldInt16, FieldInt32, FieldInt64,
		FieldFloat32, FieldFloat64, FieldBigDecimal, FieldBigInteger:
		return true
	}
	return false
}

// ParseFieldType resolves a type name as written in schema files
func ParseFieldType(name string) (FieldType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "object":
		return FieldObject, nil
	case "long":
		return FieldInt64, nil
	case "integer":
		return FieldInt32, nil
	case "short":
		return FieldInt16, nil
	case "byte":
		return FieldInt8, nil
	case "float":
		return FieldFloat32, nil
	case "double":
		return FieldFloat64, nil
	case "boolean":
		return FieldBool, nil
	case "decimal":
		return FieldBigDecimal, nil
	case "bigint":
		return FieldBigInteger, nil
	case "time", "datetime", "timestamp":
		return FieldDate, nil
	}
	for t, tn := range fieldTypeNames {
		if tn == n {
			return t, nil
		}
	}
	return FieldObject, fmt.Errorf("unknown field type %q", name)
}

// Relation classifies how a field relates to other persistable objects
type Relation int

const (
	RelationNone Relation = iota
	RelationOne
	RelationCollection
	RelationMap
	RelationArray
)

func (r Relation) String() string {
	switch r {
	case RelationNone:
		return "none"
	case RelationOne:
		return "one"
	case RelationCollection:
		return "collection"
	case RelationMap:
		return "map"
	case RelationArray:
		return "array"
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// MultiValued reports whether the relation holds several references
func (r Relation) MultiValued() bool {
	return r == RelationCollection || r == RelationMap || r == RelationArray
}

// IdentityType selects how objects of a class are identified
type IdentityType int

const (
	IdentityApplication IdentityType = iota // user-declared primary key fields
	IdentityDatastore                       // surrogate key held in its own column
	IdentityNondurable                      // no identity, rows matched on all field values
)

// DatastoreIDKind is the value type of a datastore identity
type DatastoreIDKind int

const (
	DatastoreIDLong DatastoreIDKind = iota
	DatastoreIDString
)

// VersionStrategy selects how versions advance
type VersionStrategy int

const (
	VersionNone VersionStrategy = iota
	VersionNumber
	VersionDateTime
)

// VersionMeta describes the optimistic version of a class. When Field is set
// the version lives in that field's column, otherwise in a surrogate column.
type VersionMeta struct {
	Strategy VersionStrategy
	Field    string
	Position *int
	Column   string
}

// EnumMeta lists the constants of an enum field in ordinal order
type EnumMeta struct {
	Values  []string
	Numeric bool // store the ordinal instead of the name
}

// Ordinal returns the index of the named constant or -1
func (e *EnumMeta) Ordinal(name string) int {
	for i, v := range e.Values {
		if v == name {
			return i
		}
	}
	return -1
}

// MapEntry is one key/value pair of a map field
type MapEntry struct {
	Key   any
	Value any
}

// FieldMeta describes one managed field
type FieldMeta struct {
	Name     string
	Type     FieldType
	TypeName string // logical member type used to find fallback converters
	Relation Relation

	Target      string // related class for one-to-one and collection elements
	KeyTarget   string // related class of map keys, empty for plain keys
	ValueTarget string // related class of map values, empty for plain values
	KeyType     FieldType
	ValueType   FieldType

	PrimaryKey     bool
	Embedded       *ClassMeta
	CascadePersist bool
	CascadeDelete  bool
	NoInsert       bool
	NoUpdate       bool

	Position      *int
	Column        string
	Converter     string
	NumericColumn bool

	Enum     *EnumMeta
	Ordering string
}

// IsEmbedded reports whether the field stores an embedded object inline
func (f *FieldMeta) IsEmbedded() bool {
	return f.Embedded != nil
}

// ClassMeta describes a persistable class
type ClassMeta struct {
	Name        string
	Table       string
	Identity    IdentityType
	DatastoreID DatastoreIDKind
	IDPosition  *int
	IDColumn    string
	Version     *VersionMeta
	Parent      *ClassMeta
	Fields      []*FieldMeta
	ReadOnly    bool

	// EmbeddedOnly marks classes that are only stored inline in an owner row
	EmbeddedOnly bool

	once sync.Once
	all  []*FieldMeta
}

// TableName returns the sheet name of the class
func (c *ClassMeta) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Name
}

// AllFields returns inherited fields followed by declared fields. The index
// in this slice is the absolute field number.
func (c *ClassMeta) AllFields() []*FieldMeta {
	c.once.Do(func() {
		var all []*FieldMeta
		if c.Parent != nil {
			all = append(all, c.Parent.AllFields()...)
		}
		c.all = append(all, c.Fields...)
	})
	return c.all
}

// InheritedCount returns the number of fields inherited from ancestors
func (c *ClassMeta) InheritedCount() int {
	if c.Parent == nil {
		return 0
	}
	return len(c.Parent.AllFields())
}

// FieldCount returns the total number of managed fields
func (c *ClassMeta) FieldCount() int {
	return len(c.AllFields())
}

// Field returns the field with the absolute number or nil
func (c *ClassMeta) Field(n int) *FieldMeta {
	all := c.AllFields()
	if n < 0 || n >= len(all) {
		return nil
	}
	return all[n]
}

// FieldNumber returns the absolute number of the named field or -1
func (c *ClassMeta) FieldNumber(name string) int {
	for i, f := range c.AllFields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// AllFieldNumbers returns 0..FieldCount-1
func (c *ClassMeta) AllFieldNumbers() []int {
	nums := make([]int, c.FieldCount())
	for i := range nums {
		nums[i] = i
	}
	return nums
}

// PKFieldNumbers returns the absolute numbers of the primary key fields
func (c *ClassMeta) PKFieldNumbers() []int {
	var nums []int
	for i, f := range c.AllFields() {
		if f.PrimaryKey {
			nums = append(nums, i)
		}
	}
	return nums
}

// VersionFieldNumber returns the field holding the version or -1
func (c *ClassMeta) VersionFieldNumber() int {
	if c.Version == nil || c.Version.Field == "" {
		return -1
	}
	return c.FieldNumber(c.Version.Field)
}

// IsVersioned reports whether the class has an optimistic version
func (c *ClassMeta) IsVersioned() bool {
	return c.Version != nil && c.Version.Strategy != VersionNone
}

// IsSubclassOf reports whether the class is or descends from other
func (c *ClassMeta) IsSubclassOf(other *ClassMeta) bool {
	for k := c; k != nil; k = k.Parent {
		if k == other {
			return true
		}
	}
	return false
}

// Validate checks the metadata for inconsistencies
func (c *ClassMeta) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class name is empty")
	}
	seen := make(map[string]bool)
	for _, f := range c.AllFields() {
		if f.Name == "" {
			return fmt.Errorf("class %s: field name is empty", c.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("class %s: duplicate field %s", c.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Type == FieldEnum && (f.Enum == nil || len(f.Enum.Values) == 0) {
			return fmt.Errorf("class %s: enum field %s has no values", c.Name, f.Name)
		}
		if f.Relation != RelationNone && f.Embedded == nil {
			switch f.Relation {
			case RelationOne, RelationCollection, RelationArray:
				if f.Target == "" {
					return fmt.Errorf("class %s: relation field %s has no target", c.Name, f.Name)
				}
			}
		}
	}
	if !c.EmbeddedOnly && c.Identity == IdentityApplication && len(c.PKFieldNumbers()) == 0 {
		return fmt.Errorf("class %s: application identity requires a primary key field", c.Name)
	}
	if c.Version != nil && c.Version.Field != "" && c.VersionFieldNumber() < 0 {
		return fmt.Errorf("class %s: version field %s does not exist", c.Name, c.Version.Field)
	}
	return nil
}

// Schema is a registry of class metadata by name
type Schema struct {
	mu      sync.RWMutex
	classes map[string]*ClassMeta
	order   []string
}

// NewSchema creates a schema holding the given classes
func NewSchema(classes ...*ClassMeta) (*Schema, error) {
	s := &Schema{classes: make(map[string]*ClassMeta)}
	for _, c := range classes {
		if err := s.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds a class after validating it
func (s *Schema) Register(c *ClassMeta) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.classes[c.Name]; exists {
		return fmt.Errorf("class %s already registered", c.Name)
	}
	s.classes[c.Name] = c
	s.order = append(s.order, c.Name)
	return nil
}

// Class returns the named class
func (s *Schema) Class(name string) (*ClassMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[name]
	return c, ok
}

// Classes returns all classes in registration order
func (s *Schema) Classes() []*ClassMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ClassMeta, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.classes[name])
	}
	return out
}

// Pos is a helper for declaring explicit column positions
func Pos(n int) *int {
	return &n
}
