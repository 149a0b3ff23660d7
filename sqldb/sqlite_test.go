package sqldb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandaldf/sqlfrag"
)

func openSQLite(t *testing.T) *sqlfrag.Conn {
	t.Helper()
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	db, err := sqlfrag.New(sqlfrag.WithRegistry(testRegistry(t))).Connect(conn, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.CreateTable(ctx, "Contact"))
	require.NoError(t, db.CreateTable(ctx, "Order"))
	return db
}

func TestSQLite_EndToEnd(t *testing.T) {
	db := openSQLite(t)
	c := db.Composer()
	ctx := context.Background()

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Contact", "Order"}, tables)

	ch, err := db.Insert(ctx, nil, Contact{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, sqlfrag.Changes{RowsAffected: 1, LastInsertID: 1}, ch)

	ch, err = db.InsertAll(ctx, "Contact", []*Contact{
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Cid", Email: "cid@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, sqlfrag.Changes{RowsAffected: 2, LastInsertID: 3}, ch)

	// unique index
	_, err = db.Insert(ctx, nil, Contact{Name: "Dup", Email: "ann@example.com"})
	assert.Error(t, err)

	var all []Contact
	require.NoError(t, db.All(ctx, c.From("Contact").OrderBy(`"name" DESC`), &all))
	require.Len(t, all, 3)
	assert.Equal(t, "Cid", all[0].Name)

	var row map[string]any
	require.NoError(t, db.One(ctx, c.From("Contact").Where(c.IDEquals(1)), &row))
	assert.Equal(t, map[string]any{"id": int64(1), "name": "Ann", "email": "ann@example.com"}, row)

	exists, err := db.Value(ctx, c.From("Contact").Where(sqlfrag.Ops{"equals": map[string]any{"email": "bob@example.com"}}).Exists())
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	exists, err = db.Value(ctx, c.From("Contact").Where(sqlfrag.Ops{"startsWith": map[string]any{"name": "Z"}}).Exists())
	require.NoError(t, err)
	assert.Equal(t, false, exists)

	count, err := db.Value(ctx, c.From("Contact").RowCount())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	var page []Contact
	require.NoError(t, db.All(ctx, c.From("Contact").OrderBy(`"id"`).Skip(1).Take(1), &page))
	require.Len(t, page, 1)
	assert.Equal(t, "Bob", page[0].Name)

	require.NoError(t, db.All(ctx, c.From("Contact").OrderBy(`"id"`).Skip(2), &page))
	require.Len(t, page, 1)
	assert.Equal(t, "Cid", page[0].Name)
}

func TestSQLite_JoinAndWrites(t *testing.T) {
	db := openSQLite(t)
	c := db.Composer()
	ctx := context.Background()

	_, err := db.InsertAll(ctx, nil, []Contact{
		{Name: "Ann", Email: "ann@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	})
	require.NoError(t, err)
	_, err = db.Insert(ctx, nil, Order{ContactID: 1, Total: 9.5})
	require.NoError(t, err)
	_, err = db.Insert(ctx, nil, Order{ContactID: 1, Total: 0.5})
	require.NoError(t, err)

	var orders []Order
	require.NoError(t, db.All(ctx, c.From("Order"), &orders))
	require.Len(t, orders, 2)
	assert.False(t, orders[0].CreatedAt.IsZero(), "createdAt defaults to the current time")
	assert.Nil(t, orders[0].Note)

	q := c.From("Order", "o").
		Join("Contact", sqlfrag.On(func(r ...sqlfrag.Ref) sqlfrag.Fragment {
			return sqlfrag.Expr("{} = {}", r[1].Col("id"), r[0].Col("contactId"))
		})).
		Select(`"Contact"."name", SUM(o."total")`).
		GroupBy(`"Contact"."name"`)
	rows, err := db.Arrays(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ann", 10.0}}, rows)

	names, err := db.Column(ctx, c.From("Contact").Select(sqlfrag.Props("email")).OrderBy(`"email"`))
	require.NoError(t, err)
	assert.Equal(t, []any{"ann@example.com", "bob@example.com"}, names)

	ch, err := db.Exec(ctx, c.Update("Contact").Set(map[string]any{"name": "Annie"}).Where(c.IDEquals(1)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.RowsAffected)

	ch, err = db.Update(ctx, nil, Contact{ID: 2, Name: "Bobby"}, sqlfrag.WriteOptions{OnlyProps: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.RowsAffected)

	var got Contact
	require.NoError(t, db.One(ctx, c.From("Contact").Where(c.IDEquals(2)), &got))
	assert.Equal(t, Contact{ID: 2, Name: "Bobby", Email: "bob@example.com"}, got)

	ch, err = db.Delete(ctx, nil, Contact{ID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.RowsAffected)

	err = db.One(ctx, c.From("Contact").Where(c.IDEquals(2)), &got)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	ch, err = db.Exec(ctx, c.DeleteFrom("Order").Where(sqlfrag.Ops{"op": []any{"<", map[string]any{"total": 1}}}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ch.RowsAffected)

	f := db.Async().Value(ctx, c.From("Order").RowCount())
	n, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.DropTable(ctx, "Order"))
	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Contact"}, tables)
}
