package sqlfrag

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
)

// Fragment is a composable piece of SQL and the values its placeholders are
// bound to. A fragment is never modified once built; combining fragments only
// writes into the destination's params.
type Fragment struct {
	SQL    string
	Params Params
	err    error
}

// Err returns the error recorded while the fragment was built.
func (f Fragment) Err() error { return f.err }

// Build returns the fragment as a statement of raw rows.
func (f Fragment) Build() (Statement, error) {
	if f.err != nil {
		return Statement{}, f.err
	}
	return Statement{SQL: f.SQL, Params: f.Params.Clone()}, nil
}

// Raw returns a fragment of literal SQL. params may be nil.
func Raw(sql string, params Params) Fragment {
	return Fragment{SQL: sql, Params: params.Clone()}
}

// Ident is pre-quoted identifier text spliced verbatim by Expr.
type Ident string

// Column is a pre-quoted column reference produced by Ref.Col.
type Column struct {
	sql string
	err error
}

// String returns the quoted column text, e.g. `c."name"`.
func (c Column) String() string { return c.sql }

// Err returns the resolution error of the column, if any.
func (c Column) Err() error { return c.err }

// argKind is the shape of one Expr argument.
type argKind uint8

const (
	argEmpty argKind = iota
	argToken
	argTable
	argSlice
	argQuery
	argFragment
	argScalar
	argInvalid
)

// subqueryIndent is inserted after every newline of a spliced fragment.
const subqueryIndent = "\n      "

// paginationParams are renamed before a fragment or sub-query is merged so
// they cannot clash with the outer query's own LIMIT/OFFSET.
var paginationParams = []string{"limit", "offset"}

// classify resolves the shape of an interpolated value.
//
// Falsy scalars (nil, false, numeric zero, "" and nil pointers) are argEmpty:
// they are spliced as empty text rather than bound, so a legitimate 0 or ""
// must be passed through Raw or a slice to reach the statement.
func classify(v any) argKind {
	switch x := v.(type) {
	case nil:
		return argEmpty
	case Column, Ident, []Column, []Ident:
		return argToken
	case Ref:
		return argTable
	case Fragment, Statement:
		return argFragment
	case []byte:
		if x == nil {
			return argEmpty
		}
		return argScalar
	case driver.Valuer:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return argEmpty
		}
		return argScalar
	case Query:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return argEmpty
		}
		return argQuery
	case bool:
		if !x {
			return argEmpty
		}
		return argScalar
	case string:
		if x == "" {
			return argEmpty
		}
		return argScalar
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return argSlice
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return argEmpty
		}
		return argScalar
	case reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return argInvalid
	}
	if rv.IsZero() && rv.Kind() != reflect.Struct {
		return argEmpty
	}
	return argScalar
}

// Expr builds a fragment from a format with one {} hole per argument. A
// literal {} is written {{}}. Each argument is spliced according to its
// shape:
//
//   - Column and Ident: the quoted identifier text, no parameter. Slices of
//     them are joined with ", ".
//   - Ref: the quoted table name.
//   - slices and arrays: a comma separated list of fresh positional
//     placeholders, one per element (for IN (...) lists).
//   - Fragment, Statement and other Query values: limit/offset params
//     renamed, then merged with MergeParams and spliced in place,
//     re-indented when multi-line.
//   - falsy scalars (nil, false, 0, "", nil pointers): nothing at all.
//   - any other value: a fresh positional placeholder bound to the value.
func Expr(format string, args ...any) Fragment {
	text := splitHoles(format)
	if n := len(text) - 1; n != len(args) {
		return Fragment{err: fmt.Errorf("%w: %q has %d holes for %d arguments", ErrInvalidFragment, format, n, len(args))}
	}

	var sb strings.Builder
	sb.Grow(len(format) + 8*len(args))
	params := Params{}
	for i, arg := range args {
		sb.WriteString(text[i])
		if err := splice(&sb, params, arg); err != nil {
			return Fragment{err: fmt.Errorf("argument #%d: %w", i+1, err)}
		}
	}
	sb.WriteString(text[len(args)])
	return Fragment{SQL: sb.String(), Params: params}
}

// splitHoles returns the text around the {} holes of format, with {{}}
// unescaped to {}.
func splitHoles(format string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(format); {
		switch {
		case strings.HasPrefix(format[i:], "{{}}"):
			cur.WriteString("{}")
			i += 4
		case strings.HasPrefix(format[i:], "{}"):
			out = append(out, cur.String())
			cur.Reset()
			i += 2
		default:
			cur.WriteByte(format[i])
			i++
		}
	}
	return append(out, cur.String())
}

// splice writes one interpolated value into sb, binding into params.
func splice(sb *strings.Builder, params Params, v any) error {
	switch classify(v) {
	case argEmpty:
		return nil

	case argToken:
		switch x := v.(type) {
		case Column:
			if x.err != nil {
				return x.err
			}
			sb.WriteString(x.sql)
		case Ident:
			sb.WriteString(string(x))
		case []Column:
			for i, c := range x {
				if c.err != nil {
					return c.err
				}
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(c.sql)
			}
		case []Ident:
			for i, id := range x {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(string(id))
			}
		}
		return nil

	case argTable:
		ref := v.(Ref)
		if ref.err != nil {
			return ref.err
		}
		sb.WriteString(ref.QuotedTable())
		return nil

	case argSlice:
		rv := reflect.ValueOf(v)
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			name := NextParam(params)
			params[name] = rv.Index(i).Interface()
			sb.WriteString("$" + name)
		}
		return nil

	case argFragment:
		var f Fragment
		switch x := v.(type) {
		case Fragment:
			if x.err != nil {
				return x.err
			}
			f = x
		case Statement:
			f = Fragment{SQL: x.SQL, Params: x.Params}
		}
		f = renamePagination(f)
		sb.WriteString(strings.ReplaceAll(MergeParams(params, f), "\n", subqueryIndent))
		return nil

	case argQuery:
		st, err := v.(Query).Build()
		if err != nil {
			return err
		}
		f := renamePagination(Fragment{SQL: st.SQL, Params: st.Params})
		sb.WriteString(strings.ReplaceAll(MergeParams(params, f), "\n", subqueryIndent))
		return nil

	case argScalar:
		name := NextParam(params)
		params[name] = v
		sb.WriteString("$" + name)
		return nil
	}
	return fmt.Errorf("%w: unsupported value of type %T", ErrInvalidFragment, v)
}

// renamePagination returns a copy of f whose limit/offset params are renamed
// to fresh positional names.
func renamePagination(f Fragment) Fragment {
	found := false
	for _, k := range paginationParams {
		if _, ok := f.Params[k]; ok {
			found = true
		}
	}
	if !found {
		return f
	}
	params := f.Params.Clone()
	renames := make(map[string]string, len(paginationParams))
	for _, k := range paginationParams {
		v, ok := params[k]
		if !ok {
			continue
		}
		to := NextParam(params)
		params[to] = v
		delete(params, k)
		renames[k] = to
	}
	return Fragment{SQL: renamePlaceholders(f.SQL, renames), Params: params}
}
