package sheetstore

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// schemaFile is the YAML form of a schema
type schemaFile struct {
	Classes []classDef `yaml:"classes"`
}

type classDef struct {
	Name         string      `yaml:"name"`
	Table        string      `yaml:"table"`
	Identity     string      `yaml:"identity"`
	DatastoreID  string      `yaml:"datastore_id"`
	IDPosition   *int        `yaml:"id_position"`
	IDColumn     string      `yaml:"id_column"`
	Version      *versionDef `yaml:"version"`
	Parent       string      `yaml:"parent"`
	ReadOnly     bool        `yaml:"read_only"`
	EmbeddedOnly bool        `yaml:"embedded_only"`
	Fields       []fieldDef  `yaml:"fields"`
}

type versionDef struct {
	Strategy string `yaml:"strategy"`
	Field    string `yaml:"field"`
	Position *int   `yaml:"position"`
	Column   string `yaml:"column"`
}

type fieldDef struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	TypeName       string   `yaml:"type_name"`
	Relation       string   `yaml:"relation"`
	Target         string   `yaml:"target"`
	KeyTarget      string   `yaml:"key_target"`
	ValueTarget    string   `yaml:"value_target"`
	KeyType        string   `yaml:"key_type"`
	ValueType      string   `yaml:"value_type"`
	PrimaryKey     bool     `yaml:"primary_key"`
	Embedded       string   `yaml:"embedded"`
	CascadePersist bool     `yaml:"cascade_persist"`
	CascadeDelete  bool     `yaml:"cascade_delete"`
	NoInsert       bool     `yaml:"no_insert"`
	NoUpdate       bool     `yaml:"no_update"`
	Position       *int     `yaml:"position"`
	Column         string   `yaml:"column"`
	Converter      string   `yaml:"converter"`
	NumericColumn  bool     `yaml:"numeric_column"`
	Enum           []string `yaml:"enum"`
	EnumNumeric    bool     `yaml:"enum_numeric"`
	Ordering       string   `yaml:"ordering"`
}

// LoadSchemaFile reads a YAML schema from a file
func LoadSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return LoadSchema(f)
}

// LoadSchema reads a YAML schema. Parent and embedded classes are referred
// to by name and may be declared in any order.
func LoadSchema(r io.Reader) (*Schema, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	classes := make(map[string]*ClassMeta, len(file.Classes))
	for _, def := range file.Classes {
		if _, dup := classes[def.Name]; dup {
			return nil, fmt.Errorf("class %s declared twice", def.Name)
		}
		cmd, err := def.build()
		if err != nil {
			return nil, err
		}
		classes[def.Name] = cmd
	}

	// link by name once every class exists
	for _, def := range file.Classes {
		cmd := classes[def.Name]
		if def.Parent != "" {
			parent, ok := classes[def.Parent]
			if !ok {
				return nil, fmt.Errorf("class %s: unknown parent %s", def.Name, def.Parent)
			}
			cmd.Parent = parent
		}
		for i, fd := range def.Fields {
			if fd.Embedded == "" {
				continue
			}
			emb, ok := classes[fd.Embedded]
			if !ok {
				return nil, fmt.Errorf("class %s: field %s embeds unknown class %s", def.Name, fd.Name, fd.Embedded)
			}
			cmd.Fields[i].Embedded = emb
		}
	}
	for _, def := range file.Classes {
		if err := checkParentCycle(classes[def.Name]); err != nil {
			return nil, err
		}
	}

	schema, _ := NewSchema()
	for _, def := range file.Classes {
		if err := schema.Register(classes[def.Name]); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func checkParentCycle(cmd *ClassMeta) error {
	seen := map[*ClassMeta]bool{}
	for c := cmd; c != nil; c = c.Parent {
		if seen[c] {
			return fmt.Errorf("class %s: inheritance cycle", cmd.Name)
		}
		seen[c] = true
	}
	return nil
}

func (def classDef) build() (*ClassMeta, error) {
	cmd := &ClassMeta{
		Name:         def.Name,
		Table:        def.Table,
		IDPosition:   def.IDPosition,
		IDColumn:     def.IDColumn,
		ReadOnly:     def.ReadOnly,
		EmbeddedOnly: def.EmbeddedOnly,
	}

	switch strings.ToLower(def.Identity) {
	case "", "application":
		cmd.Identity = IdentityApplication
	case "datastore":
		cmd.Identity = IdentityDatastore
	case "nondurable":
		cmd.Identity = IdentityNondurable
	default:
		return nil, fmt.Errorf("class %s: unknown identity %q", def.Name, def.Identity)
	}
	switch strings.ToLower(def.DatastoreID) {
	case "", "long", "int64":
		cmd.DatastoreID = DatastoreIDLong
	case "string", "uuid":
		cmd.DatastoreID = DatastoreIDString
	default:
		return nil, fmt.Errorf("class %s: unknown datastore id kind %q", def.Name, def.DatastoreID)
	}

	if def.Version != nil {
		vm := &VersionMeta{Field: def.Version.Field, Position: def.Version.Position, Column: def.Version.Column}
		switch strings.ToLower(def.Version.Strategy) {
		case "", "number":
			vm.Strategy = VersionNumber
		case "datetime", "date-time", "timestamp":
			vm.Strategy = VersionDateTime
		case "none":
			vm.Strategy = VersionNone
		default:
			return nil, fmt.Errorf("class %s: unknown version strategy %q", def.Name, def.Version.Strategy)
		}
		cmd.Version = vm
	}

	for _, fd := range def.Fields {
		f, err := fd.build()
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", def.Name, err)
		}
		cmd.Fields = append(cmd.Fields, f)
	}
	return cmd, nil
}

func (fd fieldDef) build() (*FieldMeta, error) {
	f := &FieldMeta{
		Name:           fd.Name,
		TypeName:       fd.TypeName,
		Target:         fd.Target,
		KeyTarget:      fd.KeyTarget,
		ValueTarget:    fd.ValueTarget,
		PrimaryKey:     fd.PrimaryKey,
		CascadePersist: fd.CascadePersist,
		CascadeDelete:  fd.CascadeDelete,
		NoInsert:       fd.NoInsert,
		NoUpdate:       fd.NoUpdate,
		Position:       fd.Position,
		Column:         fd.Column,
		Converter:      fd.Converter,
		NumericColumn:  fd.NumericColumn,
		Ordering:       fd.Ordering,
	}

	switch strings.ToLower(fd.Relation) {
	case "", "none":
		f.Relation = RelationNone
	case "one", "one-to-one", "many-to-one":
		f.Relation = RelationOne
	case "collection", "list", "set":
		f.Relation = RelationCollection
	case "map":
		f.Relation = RelationMap
	case "array":
		f.Relation = RelationArray
	default:
		return nil, fmt.Errorf("field %s: unknown relation %q", fd.Name, fd.Relation)
	}

	var err error
	switch {
	case fd.Type != "":
		if f.Type, err = ParseFieldType(fd.Type); err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
	case len(fd.Enum) > 0:
		f.Type = FieldEnum
	case f.Relation != RelationNone || fd.Embedded != "":
		f.Type = FieldObject
	default:
		f.Type = FieldString
	}
	if fd.KeyType != "" {
		if f.KeyType, err = ParseFieldType(fd.KeyType); err != nil {
			return nil, fmt.Errorf("field %s key: %w", fd.Name, err)
		}
	}
	if fd.ValueType != "" {
		if f.ValueType, err = ParseFieldType(fd.ValueType); err != nil {
			return nil, fmt.Errorf("field %s value: %w", fd.Name, err)
		}
	}
	if len(fd.Enum) > 0 {
		f.Enum = &EnumMeta{Values: fd.Enum, Numeric: fd.EnumNumeric}
	}
	return f, nil
}
