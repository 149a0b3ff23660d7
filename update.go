package sqlfrag

import (
	"fmt"
	"sort"
	"strings"
)

// UpdateQuery builds an UPDATE statement. Building it without a WHERE clause
// fails with ErrMissingWhereClause unless AllRows was called.
type UpdateQuery struct {
	whereQuery
	set     []string
	allRows bool
}

// Update starts an UPDATE of table.
func (c *Composer) Update(table any) *UpdateQuery {
	return &UpdateQuery{whereQuery: newWhereQuery(c, table, "")}
}

// Where adds an AND condition. See SelectQuery.And.
func (q *UpdateQuery) Where(cond any) *UpdateQuery { return q.And(cond) }

// And adds a condition joined with AND.
func (q *UpdateQuery) And(cond any) *UpdateQuery {
	q.condition("AND", cond)
	return q
}

// Or adds a condition joined with OR.
func (q *UpdateQuery) Or(cond any) *UpdateQuery {
	q.condition("OR", cond)
	return q
}

// AllRows allows the statement to run without a WHERE clause.
func (q *UpdateQuery) AllRows() *UpdateQuery {
	q.allRows = true
	return q
}

// Set adds assignments: a map of property values (bound as $prop), a
// Fragment or an ExprFunc. nil clears the SET list.
func (q *UpdateQuery) Set(values any) *UpdateQuery {
	if q.err != nil {
		return q
	}
	var byProp map[string]any
	switch v := values.(type) {
	case nil:
		q.set = q.set[:0]
		return q
	case Params:
		byProp = v
	case map[string]any:
		byProp = v
	default:
		f, err := asFragment(values, q.refs)
		if err != nil {
			q.fail(err)
			return q
		}
		q.set = append(q.set, q.merge(f))
		return q
	}

	props := make([]string, 0, len(byProp))
	for p := range byProp {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		col, err := q.meta().column(p)
		if err != nil {
			q.fail(err)
			return q
		}
		q.params[p] = byProp[p]
		q.set = append(q.set, q.c.dialect.QuoteColumn(col.Name)+" = $"+p)
	}
	return q
}

// HasSet reports whether any assignment was added.
func (q *UpdateQuery) HasSet() bool { return len(q.set) > 0 }

// Build renders UPDATE "T" SET ... WHERE ....
func (q *UpdateQuery) Build() (Statement, error) {
	if q.err != nil {
		return Statement{}, q.err
	}
	if len(q.set) == 0 {
		return Statement{}, fmt.Errorf("%w: UPDATE %s has nothing to SET", ErrInvalidFragment, q.meta().Name())
	}
	if len(q.where) == 0 && !q.allRows {
		return Statement{}, fmt.Errorf("%w: UPDATE %s, call AllRows to update every row", ErrMissingWhereClause, q.meta().Name())
	}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(q.root().QuotedTable())
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(q.set, ", "))
	q.buildWhere(&sb)
	return Statement{SQL: sb.String(), Params: q.params.Clone()}, nil
}

// String renders the statement for inspection.
func (q *UpdateQuery) String() string { return stringOf(q) }

// DeleteQuery builds a DELETE statement. Building it without a WHERE clause
// fails with ErrMissingWhereClause unless AllRows was called.
type DeleteQuery struct {
	whereQuery
	allRows bool
}

// DeleteFrom starts a DELETE from table.
func (c *Composer) DeleteFrom(table any) *DeleteQuery {
	return &DeleteQuery{whereQuery: newWhereQuery(c, table, "")}
}

// Where adds an AND condition. See SelectQuery.And.
func (q *DeleteQuery) Where(cond any) *DeleteQuery { return q.And(cond) }

// And adds a condition joined with AND.
func (q *DeleteQuery) And(cond any) *DeleteQuery {
	q.condition("AND", cond)
	return q
}

// Or adds a condition joined with OR.
func (q *DeleteQuery) Or(cond any) *DeleteQuery {
	q.condition("OR", cond)
	return q
}

// AllRows allows the statement to run without a WHERE clause.
func (q *DeleteQuery) AllRows() *DeleteQuery {
	q.allRows = true
	return q
}

// Build renders DELETE FROM "T" WHERE ....
func (q *DeleteQuery) Build() (Statement, error) {
	if q.err != nil {
		return Statement{}, q.err
	}
	if len(q.where) == 0 && !q.allRows {
		return Statement{}, fmt.Errorf("%w: DELETE FROM %s, call AllRows to delete every row", ErrMissingWhereClause, q.meta().Name())
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(q.root().QuotedTable())
	q.buildWhere(&sb)
	return Statement{SQL: sb.String(), Params: q.params.Clone()}, nil
}

// String renders the statement for inspection.
func (q *DeleteQuery) String() string { return stringOf(q) }
