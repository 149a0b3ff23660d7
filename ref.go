package sqlfrag

import (
	"fmt"
)

// Ref binds a registered table to the alias its columns are rendered with.
// The zero alias renders bare column names. Refs are values: As returns a new
// one and never changes the receiver.
type Ref struct {
	meta    *TableMeta
	dialect Dialect
	alias   string
	err     error
}

// Meta returns the table metadata of the reference.
func (r Ref) Meta() *TableMeta { return r.meta }

// Alias returns the alias columns are prefixed with, possibly empty.
func (r Ref) Alias() string { return r.alias }

// Err returns the error recorded when the reference was resolved.
func (r Ref) Err() error { return r.err }

// QuotedTable returns the dialect-quoted table name.
func (r Ref) QuotedTable() string {
	if r.meta == nil {
		return ""
	}
	return r.dialect.QuoteTable(r.meta.TableName())
}

// As returns a copy of r using alias.
func (r Ref) As(alias string) Ref {
	r.alias = alias
	return r
}

// Col returns the column token of property prop, e.g. `c."name"`.
func (r Ref) Col(prop string) Column {
	if r.err != nil {
		return Column{err: r.err}
	}
	c, err := r.meta.column(prop)
	if err != nil {
		return Column{err: err}
	}
	return Column{sql: r.prefix() + r.dialect.QuoteColumn(c.Name)}
}

// Cols returns the column tokens of props in order.
func (r Ref) Cols(props ...string) []Column {
	out := make([]Column, len(props))
	for i, p := range props {
		out[i] = r.Col(p)
	}
	return out
}

func (r Ref) prefix() string {
	if r.alias == "" {
		return ""
	}
	return r.alias + "."
}

// same reports whether r and o reference the same table.
func (r Ref) same(o Ref) bool { return r.meta != nil && r.meta == o.meta }

// Ref returns a reference to table, which is a registered table name, a
// *TableMeta, an existing Ref or a value of a registered model type. Without
// alias the quoted table name is used as the alias; pass "" for bare columns.
func (c *Composer) Ref(table any, alias ...string) Ref {
	meta, err := c.resolve(table)
	if err != nil {
		return Ref{dialect: c.dialect, err: err}
	}
	r := Ref{meta: meta, dialect: c.dialect}
	switch {
	case len(alias) > 0:
		r.alias = alias[0]
	default:
		r.alias = r.QuotedTable()
	}
	return r
}

// Refs returns one default-aliased reference per table.
func (c *Composer) Refs(tables ...any) []Ref {
	out := make([]Ref, len(tables))
	for i, t := range tables {
		out[i] = c.Ref(t)
	}
	return out
}

// resolve finds the metadata behind a table argument.
func (c *Composer) resolve(table any) (*TableMeta, error) {
	switch t := table.(type) {
	case nil:
		return nil, fmt.Errorf("%w: table is required", ErrMetadata)
	case string:
		return c.registry.Assert(t)
	case *TableMeta:
		return t, nil
	case Ref:
		if t.err != nil {
			return nil, t.err
		}
		return t.meta, nil
	}
	return c.registry.Lookup(table)
}
