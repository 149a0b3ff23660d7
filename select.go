package sqlfrag

import (
	"fmt"
	"strings"
)

// SelectQuery builds a SELECT statement. Conditions and clauses mutate the
// query; joins, Clone, Exists and RowCount return new queries, so a shared
// base query can be extended in several directions.
//
// Clauses are always rendered in the order SELECT, FROM, joins, WHERE,
// GROUP BY, HAVING, ORDER BY, LIMIT/OFFSET.
type SelectQuery struct {
	whereQuery
	sel     []string
	groupBy []string
	having  []string
	orderBy []string
	skip    int
	take    int
	limit   string
	shape   Shape
}

// From starts a SELECT over table, which may be a registered table name, a
// *TableMeta, a model value or a Ref. Without alias columns are unprefixed.
func (c *Composer) From(table any, alias ...string) *SelectQuery {
	a := ""
	if len(alias) > 0 {
		a = alias[0]
	}
	return &SelectQuery{whereQuery: newWhereQuery(c, table, a)}
}

// Clone returns an independent copy of q.
func (q *SelectQuery) Clone() *SelectQuery {
	return &SelectQuery{
		whereQuery: q.whereQuery.clone(),
		sel:        append([]string(nil), q.sel...),
		groupBy:    append([]string(nil), q.groupBy...),
		having:     append([]string(nil), q.having...),
		orderBy:    append([]string(nil), q.orderBy...),
		skip:       q.skip,
		take:       q.take,
		limit:      q.limit,
		shape:      q.shape,
	}
}

// Where adds an AND condition (alias of And). See And for accepted values.
func (q *SelectQuery) Where(cond any) *SelectQuery { return q.And(cond) }

// And adds a condition joined with AND: a Fragment, an ExprFunc, Ops, or raw
// SQL. nil removes every condition.
func (q *SelectQuery) And(cond any) *SelectQuery {
	q.condition("AND", cond)
	return q
}

// Or adds a condition joined with OR.
func (q *SelectQuery) Or(cond any) *SelectQuery {
	q.condition("OR", cond)
	return q
}

// As aliases the root table.
func (q *SelectQuery) As(alias string) *SelectQuery {
	q.refs[0] = q.refs[0].As(alias)
	return q
}

// Join returns a copy of q joined with target: a table, a Ref or a
// *JoinBuilder. Anything else records ErrInvalidJoinArgument.
func (q *SelectQuery) Join(target any, opts ...JoinOption) *SelectQuery {
	return q.withJoin("JOIN", target, opts)
}

// LeftJoin is Join with LEFT JOIN.
func (q *SelectQuery) LeftJoin(target any, opts ...JoinOption) *SelectQuery {
	return q.withJoin("LEFT JOIN", target, opts)
}

// RightJoin is Join with RIGHT JOIN.
func (q *SelectQuery) RightJoin(target any, opts ...JoinOption) *SelectQuery {
	return q.withJoin("RIGHT JOIN", target, opts)
}

// FullJoin is Join with FULL JOIN.
func (q *SelectQuery) FullJoin(target any, opts ...JoinOption) *SelectQuery {
	return q.withJoin("FULL JOIN", target, opts)
}

// CrossJoin is Join with CROSS JOIN.
func (q *SelectQuery) CrossJoin(target any, opts ...JoinOption) *SelectQuery {
	return q.withJoin("CROSS JOIN", target, opts)
}

func (q *SelectQuery) withJoin(typ string, target any, opts []JoinOption) *SelectQuery {
	o := q.Clone()
	o.join(typ, target, opts)
	return o
}

// Select adds to the select list: raw SQL, a Fragment, an ExprFunc or a
// Selection built with Props or Columns. nil clears the list, which then
// defaults to every mapped column of the root table.
func (q *SelectQuery) Select(sel any) *SelectQuery {
	if q.err != nil {
		return q
	}
	switch s := sel.(type) {
	case nil:
		q.sel = q.sel[:0]
	case Selection:
		for _, p := range s.props {
			col, err := q.meta().column(p)
			if err != nil {
				q.fail(err)
				return q
			}
			q.sel = append(q.sel, q.quoteColumn(col.Name))
		}
		for _, c := range s.columns {
			q.sel = append(q.sel, q.quoteColumn(c))
		}
	default:
		f, err := asFragment(sel, q.refs)
		if err != nil {
			q.fail(err)
			return q
		}
		q.sel = append(q.sel, q.merge(f))
	}
	return q
}

// GroupBy adds a GROUP BY expression: raw SQL, a Fragment, an ExprFunc or a
// *ClauseBuilder. nil clears the clause.
func (q *SelectQuery) GroupBy(expr any) *SelectQuery {
	q.groupBy = q.clause(q.groupBy, expr)
	return q
}

// Having adds a HAVING expression; expressions are ANDed.
func (q *SelectQuery) Having(expr any) *SelectQuery {
	q.having = q.clause(q.having, expr)
	return q
}

// OrderBy adds an ORDER BY expression.
func (q *SelectQuery) OrderBy(expr any) *SelectQuery {
	q.orderBy = q.clause(q.orderBy, expr)
	return q
}

func (q *SelectQuery) clause(list []string, expr any) []string {
	if q.err != nil {
		return list
	}
	var f Fragment
	switch e := expr.(type) {
	case nil:
		return list[:0]
	case *ClauseBuilder:
		f = e.build(&q.whereQuery)
	default:
		var err error
		if f, err = asFragment(expr, q.refs); err != nil {
			q.fail(err)
			return list
		}
	}
	if f.err != nil {
		q.fail(f.err)
		return list
	}
	return append(list, q.merge(f))
}

// Skip sets the number of rows to skip; 0 removes it.
func (q *SelectQuery) Skip(rows int) *SelectQuery { return q.Limit(q.take, rows) }

// Take sets the maximum number of rows; 0 removes it.
func (q *SelectQuery) Take(rows int) *SelectQuery { return q.Limit(rows, q.skip) }

// Limit sets both take and skip, replacing any earlier $limit/$offset params.
func (q *SelectQuery) Limit(take, skip int) *SelectQuery {
	q.take, q.skip = max(take, 0), max(skip, 0)
	delete(q.params, "limit")
	delete(q.params, "offset")
	if q.take == 0 && q.skip == 0 {
		q.limit = ""
		return q
	}
	q.limit = q.merge(q.c.dialect.Limit(q.skip, q.take))
	return q
}

// Exists returns a query selecting TRUE for the first matching row.
func (q *SelectQuery) Exists() *SelectQuery {
	o := q.Clone()
	o.sel = []string{"TRUE"}
	o.take, o.skip = 1, 0
	delete(o.params, "limit")
	delete(o.params, "offset")
	o.limit = "LIMIT 1"
	o.shape = ShapeBool
	return o
}

// RowCount returns a query counting the rows q would return. It needs a
// driver schema; without one Build fails with ErrDriverUnavailable.
func (q *SelectQuery) RowCount() Query {
	return rowCountQuery{q: q.Clone()}
}

type rowCountQuery struct {
	q *SelectQuery
}

func (r rowCountQuery) Build() (Statement, error) {
	st, err := r.q.Build()
	if err != nil {
		return Statement{}, err
	}
	schema, err := r.q.c.Schema()
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: schema.RowCountSQL(st.SQL), Params: st.Params, Shape: ShapeNumber}, nil
}

// Build renders the statement. Without a select list every mapped column of
// the root table is selected and the statement hydrates that table.
func (q *SelectQuery) Build() (Statement, error) {
	if q.err != nil {
		return Statement{}, q.err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	st := Statement{Shape: q.shape}
	if len(q.sel) > 0 {
		sb.WriteString(strings.Join(q.sel, ", "))
	} else {
		for i, c := range q.meta().columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(q.quoteColumn(c.Name))
		}
		if st.Shape == ShapeRows {
			st.Shape = ShapeTable
			st.Into = q.meta()
		}
	}

	root := q.root()
	quoted := root.QuotedTable()
	sb.WriteString("\n  FROM ")
	sb.WriteString(quoted)
	if root.alias != "" && root.alias != quoted {
		sb.WriteByte(' ')
		sb.WriteString(root.alias)
	}
	q.buildJoins(&sb)
	q.buildWhere(&sb)
	if len(q.groupBy) > 0 {
		sb.WriteString("\n GROUP BY ")
		sb.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.having) > 0 {
		sb.WriteString("\n HAVING ")
		sb.WriteString(strings.Join(q.having, "\n   AND "))
	}
	if len(q.orderBy) > 0 {
		sb.WriteString("\n ORDER BY ")
		sb.WriteString(strings.Join(q.orderBy, ", "))
	}
	if q.limit != "" {
		sb.WriteString("\n ")
		sb.WriteString(q.limit)
	}
	st.SQL = sb.String()
	st.Params = q.params.Clone()
	return st, nil
}

// String renders the statement for inspection.
func (q *SelectQuery) String() string { return stringOf(q) }

func stringOf(q Query) string {
	st, err := q.Build()
	if err != nil {
		return fmt.Sprintf("!ERROR %v", err)
	}
	return st.String()
}
