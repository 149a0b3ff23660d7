package sqlfrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_NoClauses(t *testing.T) {
	c := newTestComposer(t)
	st := mustBuild(t, c.From("Contact"))

	assert.Equal(t, "SELECT \"id\", \"name\", \"email\"\n  FROM \"Contact\"", st.SQL)
	assert.Empty(t, st.Params)
	assert.Equal(t, ShapeTable, st.Shape)
	require.NotNil(t, st.Into)
	assert.Equal(t, "Contact", st.Into.Name())
}

func TestSelect_Aliased(t *testing.T) {
	c := newTestComposer(t)
	st := mustBuild(t, c.From("Contact", "c").Select(Props("name", "email")))
	assert.Equal(t, "SELECT c.\"name\", c.\"email\"\n  FROM \"Contact\" c", st.SQL)
	assert.Equal(t, ShapeRows, st.Shape)
	assert.Nil(t, st.Into)

	st = mustBuild(t, c.From("Contact").As("x").Select("COUNT(*)"))
	assert.Equal(t, "SELECT COUNT(*)\n  FROM \"Contact\" x", st.SQL)
}

func TestSelect_FromModelAndRef(t *testing.T) {
	c := newTestComposer(t)
	a := mustBuild(t, c.From(&Contact{}))
	b := mustBuild(t, c.From(c.Ref("Contact", "")))
	assert.Equal(t, a.SQL, b.SQL)

	_, err := c.From(struct{ X int }{}).Build()
	assert.ErrorIs(t, err, ErrMetadata)
}

func TestSelect_BuildIsIdempotent(t *testing.T) {
	c := newTestComposer(t)
	q := c.From("Contact", "c").
		Where(Ops{"startsWith": map[string]any{"name": "A"}}).
		Or(func(r ...Ref) Fragment { return Expr("{} IN ({})", r[0].Col("id"), []int{1, 2}) }).
		OrderBy("c.\"name\"").
		Take(3)

	first := mustBuild(t, q)
	second := mustBuild(t, q)
	assert.Equal(t, first, second)
	assert.Equal(t, first.String(), q.String())
}

func TestSelect_ClauseOrder(t *testing.T) {
	c := newTestComposer(t)
	q := c.From("Order", "o").
		Take(5).
		OrderBy("total DESC").
		Having("COUNT(*) > 1").
		Having("SUM(total) > 10").
		GroupBy(func(r ...Ref) Fragment { return Expr("{}", r[0].Col("contactId")) }).
		Where("o.total > 0").
		Select("o.\"contactId\", COUNT(*)")

	st := mustBuild(t, q)
	assert.Equal(t, "SELECT o.\"contactId\", COUNT(*)\n"+
		"  FROM \"Order\" o\n"+
		" WHERE o.total > 0\n"+
		" GROUP BY o.\"contactId\"\n"+
		" HAVING COUNT(*) > 1\n"+
		"   AND SUM(total) > 10\n"+
		" ORDER BY total DESC\n"+
		" LIMIT $limit", st.SQL)
	assert.Equal(t, Params{"limit": 5}, st.Params)
}

func TestSelect_NilClearsClauses(t *testing.T) {
	c := newTestComposer(t)
	q := c.From("Contact").
		Select("name").Select(nil).
		Where("1 = 1").Where(nil).
		OrderBy("name").OrderBy(nil).
		GroupBy("name").GroupBy(nil).
		Having("1 = 1").Having(nil).
		Take(3).Take(0)

	assert.Equal(t, mustBuild(t, c.From("Contact")), mustBuild(t, q))
	assert.False(t, q.HasWhere())
}

func TestSelect_Pagination(t *testing.T) {
	tests := []struct {
		name   string
		driver *Driver
		skip   int
		take   int
		sql    string
		params Params
	}{
		{"sqlite skip+take", SQLite(), 10, 5, "LIMIT $limit OFFSET $offset", Params{"limit": 5, "offset": 10}},
		{"sqlite take", SQLite(), 0, 5, "LIMIT $limit", Params{"limit": 5}},
		{"sqlite skip", SQLite(), 10, 0, "LIMIT $limit OFFSET $offset", Params{"limit": -1, "offset": 10}},
		{"mysql skip+take", MySQL(), 10, 5, "LIMIT $offset, $limit", Params{"limit": 5, "offset": 10}},
		{"mysql skip", MySQL(), 10, 0, "LIMIT $offset, " + MySQLMaxLimit, Params{"offset": 10}},
		{"postgres skip+take", Postgres(), 10, 5, "LIMIT $limit OFFSET $offset", Params{"limit": 5, "offset": 10}},
		{"postgres skip", Postgres(), 10, 0, "OFFSET $offset", Params{"offset": 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComposer(t, tt.driver)
			q := c.From("Contact")
			if tt.skip > 0 {
				q.Skip(tt.skip)
			}
			if tt.take > 0 {
				q.Take(tt.take)
			}
			st := mustBuild(t, q)
			assert.Contains(t, st.SQL, "\n "+tt.sql)
			assert.Equal(t, tt.params, st.Params)
		})
	}
}

func TestSelect_LimitReplacesEarlierParams(t *testing.T) {
	c := newTestComposer(t)
	q := c.From("Contact").Skip(10).Take(5)
	st := mustBuild(t, q)
	assert.Equal(t, Params{"limit": 5, "offset": 10}, st.Params)

	q.Limit(2, 0)
	st = mustBuild(t, q)
	assert.Equal(t, Params{"limit": 2}, st.Params)
	assert.Contains(t, st.SQL, "\n LIMIT $limit")
	assert.NotContains(t, st.SQL, "OFFSET")
}

func TestSelect_Exists(t *testing.T) {
	c := newTestComposer(t)
	base := c.From("Contact").Where(c.IDEquals(7)).Take(20)
	q := base.Exists()

	st := mustBuild(t, q)
	assert.Equal(t, "SELECT TRUE\n  FROM \"Contact\"\n WHERE \"id\" = $id\n LIMIT 1", st.SQL)
	assert.Equal(t, Params{"id": 7}, st.Params)
	assert.Equal(t, ShapeBool, st.Shape)
	assert.Nil(t, st.Into)

	// the base query is not affected
	st = mustBuild(t, base)
	assert.Equal(t, Params{"id": 7, "limit": 20}, st.Params)
	assert.Equal(t, ShapeTable, st.Shape)
}

func TestSelect_RowCount(t *testing.T) {
	c := newTestComposer(t)
	st := mustBuild(t, c.From("Contact").Where(c.IDEquals(1)).RowCount())
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT \"id\", \"name\", \"email\"\n  FROM \"Contact\"\n WHERE \"id\" = $id) AS COUNT", st.SQL)
	assert.Equal(t, Params{"id": 1}, st.Params)
	assert.Equal(t, ShapeNumber, st.Shape)

	pg := newTestComposer(t, Postgres())
	st = mustBuild(t, pg.From("Contact").RowCount())
	assert.Contains(t, st.SQL, "SELECT COUNT(*)::int FROM (")

	bare := New(WithRegistry(testRegistry(t)))
	_, err := bare.From("Contact").RowCount().Build()
	assert.ErrorIs(t, err, ErrDriverUnavailable)
}

func TestSelect_UnknownProp(t *testing.T) {
	c := newTestComposer(t)
	q := c.From("Contact").Select(Props("nope")).Where("1 = 1")
	_, err := q.Build()
	assert.ErrorIs(t, err, ErrUnresolvedColumn)
	assert.ErrorIs(t, q.Err(), ErrUnresolvedColumn)
	assert.Contains(t, q.String(), "!ERROR")
}

func TestSelect_InvalidSelection(t *testing.T) {
	c := newTestComposer(t)
	_, err := c.From("Contact").Select(42).Build()
	assert.ErrorIs(t, err, ErrInvalidFragment)
}

func TestSelect_ConcurrentDerivation(t *testing.T) {
	c := newTestComposer(t)
	base := c.From("Order", "o").Where("o.total > 0")

	done := make(chan Statement, 2)
	go func() {
		st, _ := base.Join("Contact", On(func(r ...Ref) Fragment {
			return Expr("{} = {}", r[1].Col("id"), r[0].Col("contactId"))
		})).Build()
		done <- st
	}()
	go func() {
		st, _ := base.Exists().Build()
		done <- st
	}()
	<-done
	<-done

	st := mustBuild(t, base)
	assert.NotContains(t, st.SQL, "JOIN")
	assert.NotContains(t, st.SQL, "TRUE")
}
