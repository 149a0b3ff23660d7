package sqlfrag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"
)

// Symbolic column defaults, resolved by each dialect's Schema.
const (
	DefaultNow            = "{NOW}"
	DefaultMaxText        = "{MAX_TEXT}"
	DefaultMaxTextUnicode = "{MAX_TEXT_UNICODE}"
	DefaultTrue           = "{TRUE}"
	DefaultFalse          = "{FALSE}"
)

// Reference describes a foreign key. Columns defaults to the primary keys of
// Table; On is an optional action pair, e.g. {"DELETE", "CASCADE"}.
type Reference struct {
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns,omitempty"`
	On      []string `yaml:"on,omitempty"`
}

// ColumnDef describes one mapped column. Prop is the property name builders
// refer to; Name is the database column name and defaults to Prop.
type ColumnDef struct {
	Prop          string     `yaml:"name"`
	Name          string     `yaml:"column,omitempty"`
	Type          string     `yaml:"type"`
	PrimaryKey    bool       `yaml:"primaryKey,omitempty"`
	AutoIncrement bool       `yaml:"autoIncrement,omitempty"`
	Required      bool       `yaml:"required,omitempty"`
	Unique        bool       `yaml:"unique,omitempty"`
	Index         bool       `yaml:"index,omitempty"`
	Default       string     `yaml:"default,omitempty"`
	References    *Reference `yaml:"references,omitempty"`
}

// TableDef is the input of Registry.Define. Model is an optional struct value
// (or pointer to one) whose type identifies rows of this table.
type TableDef struct {
	Name    string      `yaml:"name"`
	Alias   string      `yaml:"alias,omitempty"`
	Columns []ColumnDef `yaml:"columns"`
	Model   any         `yaml:"-"`
}

// TableMeta is the immutable metadata of a registered table.
type TableMeta struct {
	name    string
	table   string
	columns []ColumnDef
	byProp  map[string]int
	pks     []ColumnDef
	model   reflect.Type
}

// Name returns the registration name of the table.
func (m *TableMeta) Name() string { return m.name }

// TableName returns the database table name (the alias when one was given).
func (m *TableMeta) TableName() string { return m.table }

// Columns returns the columns in definition order.
func (m *TableMeta) Columns() []ColumnDef { return append([]ColumnDef(nil), m.columns...) }

// PrimaryKeys returns the primary key columns in definition order.
func (m *TableMeta) PrimaryKeys() []ColumnDef { return append([]ColumnDef(nil), m.pks...) }

// Column returns the column mapped to property prop.
func (m *TableMeta) Column(prop string) (ColumnDef, bool) {
	i, ok := m.byProp[prop]
	if !ok {
		return ColumnDef{}, false
	}
	return m.columns[i], true
}

// Model returns the struct type registered for the table, or nil.
func (m *TableMeta) Model() reflect.Type { return m.model }

func (m *TableMeta) column(prop string) (ColumnDef, error) {
	c, ok := m.Column(prop)
	if !ok {
		return ColumnDef{}, fmt.Errorf("%w: %s does not have a column property %q", ErrUnresolvedColumn, m.name, prop)
	}
	return c, nil
}

// Registry holds table metadata. Tables are defined once, during application
// setup; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*TableMeta
	models map[reflect.Type]*TableMeta
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*TableMeta),
		models: make(map[reflect.Type]*TableMeta),
	}
}

// Define validates def and registers it under def.Name.
func (r *Registry) Define(def TableDef) (*TableMeta, error) {
	m, err := newTableMeta(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[m.name]; exists {
		return nil, fmt.Errorf("%w: table %q is already defined", ErrMetadata, m.name)
	}
	if m.model != nil {
		if prev, exists := r.models[m.model]; exists {
			return nil, fmt.Errorf("%w: model %s is already mapped to %q", ErrMetadata, m.model, prev.name)
		}
		r.models[m.model] = m
	}
	r.tables[m.name] = m
	r.order = append(r.order, m.name)
	return m, nil
}

func newTableMeta(def TableDef) (*TableMeta, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrMetadata)
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s does not have any columns", ErrMetadata, def.Name)
	}
	m := &TableMeta{
		name:    def.Name,
		table:   def.Name,
		columns: make([]ColumnDef, 0, len(def.Columns)),
		byProp:  make(map[string]int, len(def.Columns)),
	}
	if def.Alias != "" {
		m.table = def.Alias
	}
	for i, c := range def.Columns {
		if c.Prop == "" {
			return nil, fmt.Errorf("%w: %s column #%d has no name", ErrMetadata, def.Name, i+1)
		}
		if c.Type == "" {
			return nil, fmt.Errorf("%w: column type for %s.%s is missing", ErrMetadata, def.Name, c.Prop)
		}
		if _, dup := m.byProp[c.Prop]; dup {
			return nil, fmt.Errorf("%w: %s.%s is defined twice", ErrMetadata, def.Name, c.Prop)
		}
		if c.Name == "" {
			c.Name = c.Prop
		}
		if c.Prop == "id" || c.AutoIncrement {
			c.PrimaryKey = true
		}
		if c.References != nil {
			ref := *c.References
			ref.Columns = append([]string(nil), ref.Columns...)
			ref.On = append([]string(nil), ref.On...)
			c.References = &ref
		}
		m.byProp[c.Prop] = len(m.columns)
		m.columns = append(m.columns, c)
		if c.PrimaryKey {
			m.pks = append(m.pks, c)
		}
	}
	if def.Model != nil {
		t := reflect.TypeOf(def.Model)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: model of %s must be a struct, got %s", ErrMetadata, def.Name, t)
		}
		m.model = t
	}
	return m, nil
}

// Assert returns the metadata registered under name.
func (r *Registry) Assert(name string) (*TableMeta, error) {
	r.mu.RLock()
	m, ok := r.tables[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a registered table", ErrMetadata, name)
	}
	return m, nil
}

// Columns returns the columns of the table registered under name.
func (r *Registry) Columns(name string) ([]ColumnDef, error) {
	m, err := r.Assert(name)
	if err != nil {
		return nil, err
	}
	return m.Columns(), nil
}

// Lookup resolves the table of a row through its registered model type.
func (r *Registry) Lookup(row any) (*TableMeta, error) {
	t := reflect.TypeOf(row)
	if t == nil {
		return nil, fmt.Errorf("%w: cannot resolve the table of a nil row", ErrMetadata)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	m, ok := r.models[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a registered model, missing Model in TableDef?", ErrMetadata, t)
	}
	return m, nil
}

// Tables returns every registered table in definition order.
func (r *Registry) Tables() []*TableMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableMeta, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// schemaFile is the YAML layout accepted by LoadYAML.
type schemaFile struct {
	Tables []TableDef `yaml:"tables"`
}

// LoadYAML defines every table listed in a YAML schema document:
//
//	tables:
//	  - name: Contact
//	    columns:
//	      - { name: id, type: INTEGER, autoIncrement: true }
//	      - { name: email, type: TEXT, required: true, unique: true, index: true }
func (r *Registry) LoadYAML(in io.Reader) error {
	var f schemaFile
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty schema document", ErrMetadata)
		}
		return fmt.Errorf("%w: %v", ErrMetadata, err)
	}
	for _, def := range f.Tables {
		if _, err := r.Define(def); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAMLFile is LoadYAML over the file at path.
func (r *Registry) LoadYAMLFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return r.LoadYAML(fh)
}
