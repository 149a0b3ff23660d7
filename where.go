package sqlfrag

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// condition is one line of a WHERE clause.
type condition struct {
	op  string // AND, OR
	sql string
}

// joinClause is one rendered JOIN line.
type joinClause struct {
	typ string
	ref Ref
	on  string
}

// whereQuery is the state shared by the SELECT, UPDATE and DELETE builders:
// table references, WHERE conditions, joins and the accumulated params.
// Conditions form a flat AND/OR chain evaluated left to right.
type whereQuery struct {
	c      *Composer
	refs   []Ref
	where  []condition
	joins  []joinClause
	params Params
	err    error
}

func newWhereQuery(c *Composer, table any, alias string) whereQuery {
	w := whereQuery{c: c, params: Params{}}
	var ref Ref
	if r, ok := table.(Ref); ok {
		ref = r
	} else {
		ref = c.Ref(table, alias)
	}
	if ref.err != nil {
		w.err = ref.err
	}
	w.refs = []Ref{ref}
	return w
}

// clone returns a copy sharing nothing mutable with w.
func (w *whereQuery) clone() whereQuery {
	return whereQuery{
		c:      w.c,
		refs:   slices.Clone(w.refs),
		where:  slices.Clone(w.where),
		joins:  slices.Clone(w.joins),
		params: w.params.Clone(),
		err:    w.err,
	}
}

func (w *whereQuery) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// merge adds the params of f and returns its SQL.
func (w *whereQuery) merge(f Fragment) string {
	if f.err != nil {
		w.fail(f.err)
		return ""
	}
	return MergeParams(w.params, f)
}

func (w *whereQuery) root() Ref { return w.refs[0] }

func (w *whereQuery) meta() *TableMeta { return w.refs[0].meta }

// quoteColumn quotes a column name with the root alias.
func (w *whereQuery) quoteColumn(name string) string {
	return w.root().prefix() + w.c.dialect.QuoteColumn(name)
}

// RefOf returns the reference of table within the query.
func (w *whereQuery) RefOf(table any) (Ref, bool) {
	meta, err := w.c.resolve(table)
	if err != nil {
		return Ref{}, false
	}
	for _, r := range w.refs {
		if r.meta == meta {
			return r, true
		}
	}
	return Ref{}, false
}

// Refs returns the table references in join order.
func (w *whereQuery) Refs() []Ref { return slices.Clone(w.refs) }

// HasWhere reports whether any condition was added.
func (w *whereQuery) HasWhere() bool { return len(w.where) > 0 }

// Params returns a copy of the params accumulated so far.
func (w *whereQuery) Params() Params { return w.params.Clone() }

// Err returns the first error recorded by the builder.
func (w *whereQuery) Err() error { return w.err }

// condition appends cond tagged with op. A nil cond clears the WHERE clause.
func (w *whereQuery) condition(op string, cond any) {
	if w.err != nil {
		return
	}
	switch c := cond.(type) {
	case nil:
		w.where = w.where[:0]
	case Ops:
		w.addOps(op, c)
	case map[string]any:
		w.addOps(op, Ops(c))
	default:
		f, err := asFragment(cond, w.refs)
		if err != nil {
			w.fail(err)
			return
		}
		if strings.TrimSpace(f.SQL) == "" {
			return
		}
		w.where = append(w.where, condition{op: op, sql: w.merge(f)})
	}
}

func (w *whereQuery) addOps(op string, o Ops) {
	if raw, ok := o["rawSql"]; ok {
		switch r := raw.(type) {
		case string:
			w.where = append(w.where, condition{op: op, sql: r})
		case []string:
			for _, s := range r {
				w.where = append(w.where, condition{op: op, sql: s})
			}
		default:
			w.fail(fmt.Errorf("%w: rawSql must be a string or []string, got %T", ErrInvalidFragment, raw))
			return
		}
	}
	if p, ok := o["params"]; ok {
		named, err := asParams(p)
		if err != nil {
			w.fail(err)
			return
		}
		for k, v := range named {
			w.params[k] = v
		}
	}
	for _, entry := range ops {
		values, ok := o[entry.key]
		if !ok {
			continue
		}
		if err := w.addWhere(op, entry.key, entry.sql, values); err != nil {
			w.fail(err)
			return
		}
	}
	if custom, ok := o["op"]; ok {
		pair, ok := custom.([]any)
		if !ok || len(pair) < 2 {
			w.fail(fmt.Errorf("%w: op must be a [sqlOperator, values] pair", ErrInvalidFragment))
			return
		}
		sqlOp, ok := pair[0].(string)
		if !ok || sqlOp == "" {
			w.fail(fmt.Errorf("%w: op operator must be a non-empty string", ErrInvalidFragment))
			return
		}
		if err := w.addWhere(op, "op", sqlOp, pair[1]); err != nil {
			w.fail(err)
		}
	}
}

func asParams(v any) (Params, error) {
	switch p := v.(type) {
	case Params:
		return p, nil
	case map[string]any:
		return Params(p), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected params map, got %T", ErrInvalidFragment, v)
}

// addWhere renders one operator entry of Ops.
func (w *whereQuery) addWhere(op, key, sqlOp string, values any) error {
	if key == "isNull" || key == "notNull" {
		props, ok := values.([]string)
		if !ok {
			return fmt.Errorf("%w: %s requires a list of property names, got %T", ErrInvalidFragment, key, values)
		}
		parts := make([]string, 0, len(props))
		for _, p := range props {
			col, err := w.meta().column(p)
			if err != nil {
				return err
			}
			parts = append(parts, w.quoteColumn(col.Name)+" "+sqlOp)
		}
		if len(parts) > 0 {
			w.where = append(w.where, condition{op: op, sql: strings.Join(parts, " "+op+" ")})
		}
		return nil
	}

	byProp, err := asParams(values)
	if err != nil {
		return err
	}
	props := make([]string, 0, len(byProp))
	for p := range byProp {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		col, err := w.meta().column(p)
		if err != nil {
			return err
		}
		left := w.quoteColumn(col.Name) + " " + sqlOp
		value := byProp[p]
		if rv := reflect.ValueOf(value); (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			names := make([]string, rv.Len())
			for i := range names {
				name := NextParam(w.params)
				w.params[name] = rv.Index(i).Interface()
				names[i] = "$" + name
			}
			w.where = append(w.where, condition{op: op, sql: left + " (" + strings.Join(names, ",") + ")"})
			continue
		}
		switch key {
		case "startsWith":
			value = fmt.Sprint(value) + "%"
		case "endsWith":
			value = "%" + fmt.Sprint(value)
		case "contains":
			value = "%" + fmt.Sprint(value) + "%"
		}
		w.params[p] = value
		w.where = append(w.where, condition{op: op, sql: left + " $" + p})
	}
	return nil
}

// JoinOption configures a join: On, As or a Fragment used as the ON clause.
type JoinOption interface {
	applyJoin(*joinSpec)
}

type joinSpec struct {
	alias string
	on    ExprFunc
	frag  *Fragment
}

type joinOptionFunc func(*joinSpec)

func (fn joinOptionFunc) applyJoin(s *joinSpec) { fn(s) }

// On builds the ON clause from the query's refs, the joined table last.
func On(fn ExprFunc) JoinOption {
	return joinOptionFunc(func(s *joinSpec) { s.on = fn })
}

// As aliases the joined table.
func As(alias string) JoinOption {
	return joinOptionFunc(func(s *joinSpec) { s.alias = alias })
}

func (f Fragment) applyJoin(s *joinSpec) { s.frag = &f }

// join appends a JOIN of target to w. target is a registered table (name,
// *TableMeta or model value), a Ref or a *JoinBuilder.
func (w *whereQuery) join(typ string, target any, opts []JoinOption) {
	if w.err != nil {
		return
	}
	if jb, ok := target.(*JoinBuilder); ok {
		w.joinBuilder(typ, jb)
		return
	}

	var ref Ref
	switch t := target.(type) {
	case Ref:
		ref = t
	case nil:
		w.fail(fmt.Errorf("%w: nil", ErrInvalidJoinArgument))
		return
	default:
		meta, err := w.c.resolve(target)
		if err != nil {
			w.fail(fmt.Errorf("%w: %T: %v", ErrInvalidJoinArgument, target, err))
			return
		}
		ref = w.c.Ref(meta)
	}
	if ref.err != nil {
		w.fail(ref.err)
		return
	}

	var spec joinSpec
	for _, opt := range opts {
		if opt != nil {
			opt.applyJoin(&spec)
		}
	}
	if spec.alias != "" {
		ref = ref.As(spec.alias)
	}
	w.aliasRoot()
	w.refs = append(w.refs, ref)

	on := ""
	switch {
	case spec.frag != nil:
		on = w.merge(*spec.frag)
	case spec.on != nil:
		on = w.merge(spec.on(w.refs...))
	}
	w.joins = append(w.joins, joinClause{typ: typ, ref: ref, on: on})
}

// aliasRoot gives an unaliased root table its quoted name as alias, so its
// columns stay unambiguous once other tables are joined.
func (w *whereQuery) aliasRoot() {
	if w.refs[0].alias == "" {
		w.refs[0] = w.refs[0].As(w.refs[0].QuotedTable())
	}
}

func (w *whereQuery) joinBuilder(typ string, jb *JoinBuilder) {
	if len(jb.tables) == 0 {
		w.fail(fmt.Errorf("%w: join builder without tables", ErrInvalidJoinArgument))
		return
	}
	w.aliasRoot()
	refs := make([]Ref, len(jb.tables))
	for i, t := range jb.tables {
		if i > 0 {
			if r, ok := w.RefOf(t); ok {
				refs[i] = r
				continue
			}
		}
		refs[i] = w.c.Ref(t)
		if refs[i].err != nil {
			w.fail(fmt.Errorf("%w: %v", ErrInvalidJoinArgument, refs[i].err))
			return
		}
	}
	if jb.alias != "" {
		refs[0] = refs[0].As(jb.alias)
	}
	w.refs = append(w.refs, refs[0])

	if len(jb.exprs) > 0 {
		typ = jb.exprs[0].typ
	}
	f := jb.build(refs)
	w.joins = append(w.joins, joinClause{typ: typ, ref: refs[0], on: w.merge(f)})
}

func (w *whereQuery) buildJoins(sb *strings.Builder) {
	for _, j := range w.joins {
		quoted := j.ref.QuotedTable()
		first, _, _ := strings.Cut(j.typ, " ")
		if len(first) <= 4 {
			sb.WriteString("\n  ")
		} else {
			sb.WriteString("\n ")
		}
		sb.WriteString(j.typ)
		sb.WriteByte(' ')
		sb.WriteString(quoted)
		if j.ref.alias != "" && j.ref.alias != quoted {
			sb.WriteByte(' ')
			sb.WriteString(j.ref.alias)
		}
		if j.on != "" {
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
		}
	}
}

func (w *whereQuery) buildWhere(sb *strings.Builder) {
	for i, c := range w.where {
		if i == 0 {
			sb.WriteString("\n WHERE ")
		} else {
			sb.WriteByte('\n')
			sb.WriteString(alignRight(c.op, 5))
		}
		sb.WriteString(c.sql)
	}
}
