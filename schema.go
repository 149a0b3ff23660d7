package sqlfrag

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gandaldf/sqlfrag/internal/fieldmap"
)

// TypeAlias maps a list of portable type tags to one native type.
type TypeAlias struct {
	Type    string
	Aliases []string
}

// Types is the column type table of a dialect. Native types pass through;
// aliases resolve to the first TypeAlias listing them; anything else is
// emitted verbatim.
type Types struct {
	Native  []string
	Aliases []TypeAlias
}

var sqliteTypes = Types{
	Native: []string{"INTEGER", "SMALLINT", "BIGINT", "REAL", "DOUBLE", "FLOAT", "NUMERIC", "DECIMAL", "BOOLEAN", "DATE", "DATETIME"},
	Aliases: []TypeAlias{
		{Type: "INTEGER", Aliases: []string{"INTERVAL", "MONEY"}},
		{Type: "BLOB", Aliases: []string{"BLOB", "BYTES", "BIT"}},
		{Type: "TEXT", Aliases: []string{"UUID", "JSON", "JSONB", "XML", "TIME", "TIMEZ", "TIMESTAMP", "TIMESTAMPZ"}},
	},
}

var mysqlTypes = Types{
	Native: []string{"INTEGER", "SMALLINT", "BIGINT", "DOUBLE", "FLOAT", "DECIMAL", "NUMERIC", "BOOLEAN", "DATE", "DATETIME", "TIME", "TIMESTAMP", "UUID", "JSON", "XML", "BLOB"},
	Aliases: []TypeAlias{
		{Type: "DOUBLE", Aliases: []string{"REAL"}},
		{Type: "TIME", Aliases: []string{"TIMEZ"}},
		{Type: "TIMESTAMP", Aliases: []string{"TIMESTAMPZ"}},
		{Type: "INTEGER", Aliases: []string{"INTERVAL"}},
		{Type: "JSON", Aliases: []string{"JSONB"}},
		{Type: "BINARY", Aliases: []string{"BYTES"}},
		{Type: "BINARY(1)", Aliases: []string{"BIT"}},
		{Type: "DECIMAL(15,2)", Aliases: []string{"MONEY"}},
	},
}

var postgresTypes = Types{
	Native: []string{"INTEGER", "SMALLINT", "BIGINT", "REAL", "DOUBLE", "FLOAT", "DECIMAL", "NUMERIC", "MONEY", "BOOLEAN", "DATE", "TIME", "TIMEZ", "TIMESTAMP", "TIMESTAMPZ", "INTERVAL", "UUID", "JSON", "JSONB", "XML", "BLOB", "BYTES", "BIT"},
	Aliases: []TypeAlias{
		{Type: "TIMESTAMPTZ", Aliases: []string{"DATETIME"}},
	},
}

type schemaFlavor uint8

const (
	sqliteFlavor schemaFlavor = iota
	mysqlFlavor
	postgresFlavor
)

// WriteOptions narrows the columns of generated INSERT/UPDATE/DELETE
// statements.
type WriteOptions struct {
	// OnlyProps restricts the statement to these properties. Primary keys are
	// always kept in UPDATE.
	OnlyProps []string
	// OnlyWithValues restricts writes to the properties of the row that are
	// not nil. Ignored when OnlyProps is set.
	OnlyWithValues bool
	// Where adds raw conditions, joined with AND, to UPDATE and DELETE.
	Where []string
}

// Schema renders DDL and DML skeletons for one dialect. Statements carry
// $column placeholders; bind them with ToDbObject.
type Schema struct {
	dialect    Dialect
	types      Types
	flavor     schemaFlavor
	variables  map[string]string
	converters map[string]Converter
	registry   *Registry
}

func newSchema(d Dialect, types Types, flavor schemaFlavor) *Schema {
	s := &Schema{
		dialect: d,
		types:   types,
		flavor:  flavor,
		variables: map[string]string{
			DefaultNow:            "CURRENT_TIMESTAMP",
			DefaultMaxText:        "TEXT",
			DefaultMaxTextUnicode: "TEXT",
			DefaultTrue:           "1",
			DefaultFalse:          "0",
		},
		converters: make(map[string]Converter),
	}
	layout := ISOTimestamp
	switch flavor {
	case mysqlFlavor:
		layout = MySQLTimestamp
	case postgresFlavor:
		s.variables[DefaultTrue] = "TRUE"
		s.variables[DefaultFalse] = "FALSE"
	}
	s.RegisterConverter(DateTimeConverter{Layout: layout}, "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPZ")
	s.RegisterConverter(UUIDConverter{}, "UUID")
	s.RegisterConverter(JSONConverter{}, "JSON", "JSONB")
	return s
}

// bind returns a shallow copy of s resolving foreign keys in r.
func (s *Schema) bind(r *Registry) *Schema {
	cp := *s
	cp.registry = r
	return &cp
}

// Dialect returns the dialect the schema quotes with.
func (s *Schema) Dialect() Dialect { return s.dialect }

// Types returns the column type table.
func (s *Schema) Types() Types { return s.types }

// RegisterConverter installs c for the given column types. Call it during
// setup, before the schema is shared.
func (s *Schema) RegisterConverter(c Converter, types ...string) {
	for t, conv := range converterFor(c, types...) {
		s.converters[t] = conv
	}
}

// Converter returns the converter registered for a column type.
func (s *Schema) Converter(typ string) (Converter, bool) {
	c, ok := s.converters[strings.ToUpper(typ)]
	return c, ok
}

// DataType resolves the native type of col.
func (s *Schema) DataType(col ColumnDef) string {
	if slices.Contains(s.types.Native, col.Type) {
		return col.Type
	}
	for _, a := range s.types.Aliases {
		if slices.Contains(a.Aliases, col.Type) {
			return a.Type
		}
	}
	return col.Type
}

// DefaultValue renders the DEFAULT clause of col, with a leading space.
func (s *Schema) DefaultValue(col ColumnDef) string {
	if col.Default == "" {
		return ""
	}
	if v, ok := s.variables[col.Default]; ok {
		return " DEFAULT " + v
	}
	return " DEFAULT " + col.Default
}

// ColumnDefinition renders one column of CREATE TABLE.
func (s *Schema) ColumnDefinition(col ColumnDef) string {
	typ := s.DataType(col)
	if s.flavor == postgresFlavor && col.AutoIncrement {
		if typ == "BIGINT" {
			typ = "BIGSERIAL"
		} else {
			typ = "SERIAL"
		}
	}
	var sb strings.Builder
	sb.WriteString(s.dialect.QuoteColumn(col.Name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if col.AutoIncrement {
		switch s.flavor {
		case sqliteFlavor:
			sb.WriteString(" AUTOINCREMENT")
		case mysqlFlavor:
			sb.WriteString(" AUTO_INCREMENT")
		}
	}
	if col.Required {
		sb.WriteString(" NOT NULL")
	}
	if col.Unique && !col.Index {
		sb.WriteString(" UNIQUE")
	}
	sb.WriteString(s.DefaultValue(col))
	return sb.String()
}

// IndexDefinition renders the CREATE INDEX statement of an indexed column.
func (s *Schema) IndexDefinition(meta *TableMeta, col ColumnDef) string {
	kind := "INDEX"
	if col.Unique {
		kind = "UNIQUE INDEX"
	}
	name := strings.ToLower("idx_" + meta.TableName() + "_" + col.Name)
	size := ""
	if s.flavor == mysqlFlavor && strings.HasSuffix(col.Type, "TEXT") {
		size = "(255)"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s%s)", kind, name,
		s.dialect.QuoteTable(meta.TableName()), s.dialect.QuoteColumn(col.Name), size)
}

// ForeignKeyDefinition renders the FOREIGN KEY constraint of col, or "" when
// col has no reference.
func (s *Schema) ForeignKeyDefinition(col ColumnDef) (string, error) {
	ref := col.References
	if ref == nil {
		return "", nil
	}
	table := ref.Table
	cols := ref.Columns
	if s.registry != nil {
		if target, err := s.registry.Assert(ref.Table); err == nil {
			table = target.TableName()
			if len(cols) == 0 {
				for _, pk := range target.pks {
					cols = append(cols, pk.Name)
				}
			}
		} else if len(cols) == 0 {
			return "", err
		}
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.QuoteColumn(c)
	}
	sql := "FOREIGN KEY (" + s.dialect.QuoteColumn(col.Name) + ") REFERENCES " + s.dialect.QuoteTable(table)
	if len(quoted) > 0 {
		sql += "(" + strings.Join(quoted, ",") + ")"
	}
	if len(ref.On) >= 2 {
		sql += " ON " + ref.On[0] + " " + ref.On[1]
	}
	return sql, nil
}

// CreateTable renders CREATE TABLE followed by one CREATE INDEX per indexed
// column.
func (s *Schema) CreateTable(meta *TableMeta) (string, error) {
	defs := make([]string, 0, len(meta.columns))
	for _, c := range meta.columns {
		defs = append(defs, s.ColumnDefinition(c))
	}
	for _, c := range meta.columns {
		fk, err := s.ForeignKeyDefinition(c)
		if err != nil {
			return "", err
		}
		if fk != "" {
			defs = append(defs, fk)
		}
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(s.dialect.QuoteTable(meta.TableName()))
	sb.WriteString(" (\n  ")
	sb.WriteString(strings.Join(defs, ",\n  "))
	sb.WriteString("\n);\n")
	var indexes []string
	for _, c := range meta.columns {
		if c.Index {
			indexes = append(indexes, s.IndexDefinition(meta, c)+";")
		}
	}
	sb.WriteString(strings.Join(indexes, "\n"))
	return sb.String(), nil
}

// DropTable renders DROP TABLE IF EXISTS.
func (s *Schema) DropTable(meta *TableMeta) string {
	return "DROP TABLE IF EXISTS " + s.dialect.QuoteTable(meta.TableName())
}

// selectProps returns the columns named by only, in definition order, or all
// columns when only is empty.
func selectProps(meta *TableMeta, only []string) ([]ColumnDef, error) {
	if len(only) == 0 {
		return meta.Columns(), nil
	}
	for _, p := range only {
		if _, err := meta.column(p); err != nil {
			return nil, err
		}
	}
	var out []ColumnDef
	for _, c := range meta.columns {
		if slices.Contains(only, c.Prop) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Insert renders INSERT INTO with one $column placeholder per written column.
// Auto-increment columns are never written; columns with a default value are
// written only when listed in OnlyProps.
func (s *Schema) Insert(meta *TableMeta, opts WriteOptions) (string, error) {
	props, err := selectProps(meta, opts.OnlyProps)
	if err != nil {
		return "", err
	}
	var cols, vals []string
	for _, c := range props {
		if c.AutoIncrement || (c.Default != "" && !slices.Contains(opts.OnlyProps, c.Prop)) {
			continue
		}
		cols = append(cols, s.dialect.QuoteColumn(c.Name))
		vals = append(vals, "$"+c.Name)
	}
	table := s.dialect.QuoteTable(meta.TableName())
	if len(cols) == 0 {
		if s.flavor == mysqlFlavor {
			return "INSERT INTO " + table + " () VALUES ()", nil
		}
		return "INSERT INTO " + table + " DEFAULT VALUES", nil
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")", nil
}

// keyConditions renders `"pk" = $pk` for every primary key, plus extra.
func (s *Schema) keyConditions(meta *TableMeta, extra []string) []string {
	conds := make([]string, 0, len(meta.pks)+len(extra))
	for _, pk := range meta.pks {
		conds = append(conds, s.dialect.QuoteColumn(pk.Name)+" = $"+pk.Name)
	}
	return append(conds, extra...)
}

// Update renders UPDATE ... SET "col"=$col WHERE "pk" = $pk. OnlyProps narrows
// the SET list.
func (s *Schema) Update(meta *TableMeta, opts WriteOptions) (string, error) {
	if len(meta.pks) == 0 && len(opts.Where) == 0 {
		return "", fmt.Errorf("%w: %s does not have a PRIMARY KEY", ErrMissingPrimaryKey, meta.Name())
	}
	props, err := selectProps(meta, opts.OnlyProps)
	if err != nil {
		return "", err
	}
	var set []string
	for _, c := range props {
		if c.PrimaryKey {
			continue
		}
		set = append(set, s.dialect.QuoteColumn(c.Name)+"=$"+c.Name)
	}
	if len(set) == 0 {
		return "", fmt.Errorf("%w: no columns to update in %s", ErrUnresolvedColumn, meta.Name())
	}
	return "UPDATE " + s.dialect.QuoteTable(meta.TableName()) + " SET " + strings.Join(set, ", ") +
		" WHERE " + strings.Join(s.keyConditions(meta, opts.Where), " AND "), nil
}

// Delete renders DELETE FROM ... WHERE "pk" = $pk [AND where...].
func (s *Schema) Delete(meta *TableMeta, opts WriteOptions) (string, error) {
	conds := s.keyConditions(meta, opts.Where)
	if len(conds) == 0 {
		return "", fmt.Errorf("%w: %s does not have a PRIMARY KEY", ErrMissingPrimaryKey, meta.Name())
	}
	return "DELETE FROM " + s.dialect.QuoteTable(meta.TableName()) + " WHERE " + strings.Join(conds, " AND "), nil
}

// TableNamesSQL returns the query listing user tables.
func (s *Schema) TableNamesSQL() string {
	switch s.flavor {
	case sqliteFlavor:
		return "SELECT name FROM sqlite_master WHERE type ='table' AND name NOT LIKE 'sqlite_%'"
	case mysqlFlavor:
		return "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE='BASE TABLE' AND table_schema = DATABASE()"
	}
	return "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE='BASE TABLE'"
}

// RowCountSQL wraps sql in SELECT COUNT(*).
func (s *Schema) RowCountSQL(sql string) string {
	if s.flavor == postgresFlavor {
		return "SELECT COUNT(*)::int FROM (" + sql + ") AS COUNT"
	}
	return "SELECT COUNT(*) FROM (" + sql + ") AS COUNT"
}

// rowValue reads property prop of row (a struct or a map keyed by property or
// column name).
func rowValue(row any, c ColumnDef) any {
	if v, ok := fieldmap.Get(row, c.Prop); ok {
		return v
	}
	if c.Name != c.Prop {
		if v, ok := fieldmap.Get(row, c.Name); ok {
			return v
		}
	}
	return nil
}

func (s *Schema) toDb(c ColumnDef, v any) (any, error) {
	conv, ok := s.Converter(c.Type)
	if !ok {
		return v, nil
	}
	out, err := conv.ToDb(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Prop, err)
	}
	return out, nil
}

// ToDbObject returns the params binding the placeholders of Insert, Update
// and Delete for row, keyed by column name with converters applied.
func (s *Schema) ToDbObject(meta *TableMeta, row any, opts WriteOptions) (Params, error) {
	if !isRow(row) {
		return nil, fmt.Errorf("%w: cannot read columns of %T", ErrMetadata, row)
	}
	out := make(Params, len(meta.columns))
	for _, c := range meta.columns {
		if len(opts.OnlyProps) > 0 && !slices.Contains(opts.OnlyProps, c.Prop) {
			continue
		}
		v, err := s.toDb(c, rowValue(row, c))
		if err != nil {
			return nil, err
		}
		out[c.Name] = v
	}
	return out, nil
}

// ToDbBindings returns the converted column values of row in column order.
func (s *Schema) ToDbBindings(meta *TableMeta, row any) ([]any, error) {
	if !isRow(row) {
		return nil, fmt.Errorf("%w: cannot read columns of %T", ErrMetadata, row)
	}
	out := make([]any, 0, len(meta.columns))
	for _, c := range meta.columns {
		v, err := s.toDb(c, rowValue(row, c))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// PropsWithValues returns the properties of row whose value is not nil, in
// column order.
func PropsWithValues(meta *TableMeta, row any) []string {
	var out []string
	for _, c := range meta.columns {
		if v := rowValue(row, c); v != nil && !isNilValue(v) {
			out = append(out, c.Prop)
		}
	}
	return out
}

func isRow(row any) bool {
	rv := fieldmap.Indirect(reflect.ValueOf(row))
	return rv.IsValid() && (rv.Kind() == reflect.Struct || rv.Kind() == reflect.Map)
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
