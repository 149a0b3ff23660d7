package sqlfrag

import (
	"fmt"
	"strings"
)

// Shape tells the connection facade how to materialize the rows of a
// statement.
type Shape uint8

const (
	// ShapeRows is raw rows.
	ShapeRows Shape = iota
	// ShapeTable is rows of the table in Statement.Into.
	ShapeTable
	// ShapeBool is a single boolean value (EXISTS).
	ShapeBool
	// ShapeNumber is a single number (row counts).
	ShapeNumber
)

func (s Shape) String() string {
	switch s {
	case ShapeRows:
		return "rows"
	case ShapeTable:
		return "table"
	case ShapeBool:
		return "bool"
	case ShapeNumber:
		return "number"
	default:
		return "unknown"
	}
}

// Statement is a finished statement: SQL with $name placeholders, the values
// they are bound to and the expected result shape.
type Statement struct {
	SQL    string
	Params Params
	Shape  Shape
	Into   *TableMeta
}

// Build returns s itself.
func (s Statement) Build() (Statement, error) { return s, nil }

// String renders the SQL followed by a PARAMS line, for inspection.
func (s Statement) String() string {
	var sb strings.Builder
	sb.WriteString(s.SQL)
	sb.WriteString("\nPARAMS {")
	for i, k := range s.Params.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, s.Params[k])
	}
	sb.WriteString("}\n")
	if s.Into != nil {
		fmt.Fprintf(&sb, "INTO %s\n", s.Into.Name())
	}
	return sb.String()
}

// Query is anything that renders a statement: fragments, statements and the
// query builders.
type Query interface {
	Build() (Statement, error)
}

// ExprFunc builds a fragment from table references. Builders pass their refs
// in join order: the root table, each joined table, then the table being
// joined.
type ExprFunc func(refs ...Ref) Fragment

// Ops is the operator shorthand accepted by Where/And/Or:
//
//	sqlfrag.Ops{"equals": map[string]any{"city": "Rome"}, "isNull": []string{"deletedAt"}}
//
// Operator keys map properties of the root table to values; "isNull" and
// "notNull" take a list of properties. The structural keys are "rawSql"
// (string or []string), "params" (merged as named params) and "op", a
// []any{sqlOperator, map[string]any{prop: value}} pair. Unknown keys are
// ignored.
type Ops map[string]any

// ops lists the operator keys in the order Ops are rendered.
var ops = []struct{ key, sql string }{
	{"equals", "="},
	{"=", "="},
	{"notEquals", "<>"},
	{"!=", "!="},
	{"like", "LIKE"},
	{"startsWith", "LIKE"},
	{"endsWith", "LIKE"},
	{"contains", "LIKE"},
	{"notLike", "NOT LIKE"},
	{"in", "IN"},
	{"notIn", "NOT IN"},
	{"isNull", "IS NULL"},
	{"notNull", "IS NOT NULL"},
}

// Selection lists properties or raw column names to select.
type Selection struct {
	props   []string
	columns []string
}

// Props selects the columns mapped to the given properties of the root table.
func Props(props ...string) Selection { return Selection{props: props} }

// Columns selects raw column names of the root table.
func Columns(columns ...string) Selection { return Selection{columns: columns} }

// alignRight right-aligns s in a field of width n and appends a space.
func alignRight(s string, n int) string {
	pad := n + 1 - len(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s + " "
}

// asFragment resolves a condition-like argument against refs.
func asFragment(v any, refs []Ref) (Fragment, error) {
	switch x := v.(type) {
	case Fragment:
		return x, x.err
	case ExprFunc:
		f := x(refs...)
		return f, f.err
	case func(...Ref) Fragment:
		f := x(refs...)
		return f, f.err
	case string:
		return Fragment{SQL: x}, nil
	case Statement:
		return Fragment{SQL: x.SQL, Params: x.Params}, nil
	}
	return Fragment{}, fmt.Errorf("%w: expected a fragment, got %T", ErrInvalidFragment, v)
}
