package sqlfrag

import (
	"fmt"
	"strings"
)

type joinExpr struct {
	typ  string
	cond any
}

// JoinBuilder is a reusable join definition. Its first table is the joined
// one; the others name tables already present in the query, and every
// condition receives their refs in that order.
//
//	join := db.Join("Contact", "Order").LeftJoin(func(refs ...sqlfrag.Ref) sqlfrag.Fragment {
//		return sqlfrag.Expr("{} = {}", refs[0].Col("id"), refs[1].Col("contactId"))
//	}).As("c")
//	db.From("Order", "o").Join(join)
type JoinBuilder struct {
	tables []any
	exprs  []joinExpr
	alias  string
}

// Join returns a reusable join over tables.
func (c *Composer) Join(tables ...any) *JoinBuilder {
	return &JoinBuilder{tables: tables}
}

// Join adds an inner join condition: a Fragment or an ExprFunc.
func (b *JoinBuilder) Join(cond any) *JoinBuilder { return b.add("JOIN", cond) }

// LeftJoin adds a LEFT JOIN condition.
func (b *JoinBuilder) LeftJoin(cond any) *JoinBuilder { return b.add("LEFT JOIN", cond) }

// RightJoin adds a RIGHT JOIN condition.
func (b *JoinBuilder) RightJoin(cond any) *JoinBuilder { return b.add("RIGHT JOIN", cond) }

// FullJoin adds a FULL JOIN condition.
func (b *JoinBuilder) FullJoin(cond any) *JoinBuilder { return b.add("FULL JOIN", cond) }

// CrossJoin adds a CROSS JOIN condition.
func (b *JoinBuilder) CrossJoin(cond any) *JoinBuilder { return b.add("CROSS JOIN", cond) }

func (b *JoinBuilder) add(typ string, cond any) *JoinBuilder {
	b.exprs = append(b.exprs, joinExpr{typ: typ, cond: cond})
	return b
}

// As aliases the joined table.
func (b *JoinBuilder) As(alias string) *JoinBuilder {
	b.alias = alias
	return b
}

// build renders the ON clause. The join type is the type of the first
// condition; further conditions are joined with AND.
func (b *JoinBuilder) build(refs []Ref) Fragment {
	params := Params{}
	parts := make([]string, 0, len(b.exprs))
	for _, e := range b.exprs {
		f, err := asFragment(e.cond, refs)
		if err != nil {
			return Fragment{err: err}
		}
		parts = append(parts, MergeParams(params, f))
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Params: params}
}

// ClauseBuilder is a reusable GROUP BY, HAVING or ORDER BY definition.
type ClauseBuilder struct {
	tables []any
	exprs  []any
	sep    string
}

// GroupBy returns a reusable GROUP BY over tables.
func (c *Composer) GroupBy(tables ...any) *ClauseBuilder {
	return &ClauseBuilder{tables: tables, sep: ", "}
}

// OrderBy returns a reusable ORDER BY over tables.
func (c *Composer) OrderBy(tables ...any) *ClauseBuilder {
	return &ClauseBuilder{tables: tables, sep: ", "}
}

// Having returns a reusable HAVING over tables. Its expressions are ANDed.
func (c *Composer) Having(tables ...any) *ClauseBuilder {
	return &ClauseBuilder{tables: tables, sep: "\n  AND "}
}

// Add appends an expression: a Fragment, an ExprFunc or raw SQL.
func (b *ClauseBuilder) Add(expr any) *ClauseBuilder {
	b.exprs = append(b.exprs, expr)
	return b
}

// build renders the clause with the refs of b's tables found in q, or all
// refs of q when b names no table.
func (b *ClauseBuilder) build(q *whereQuery) Fragment {
	refs := q.refs
	if len(b.tables) > 0 {
		refs = make([]Ref, len(b.tables))
		for i, t := range b.tables {
			r, ok := q.RefOf(t)
			if !ok {
				return Fragment{err: fmt.Errorf("%w: %v is not part of the query", ErrMetadata, t)}
			}
			refs[i] = r
		}
	}
	params := Params{}
	parts := make([]string, 0, len(b.exprs))
	for _, e := range b.exprs {
		f, err := asFragment(e, refs)
		if err != nil {
			return Fragment{err: err}
		}
		parts = append(parts, MergeParams(params, f))
	}
	return Fragment{SQL: strings.Join(parts, b.sep), Params: params}
}
