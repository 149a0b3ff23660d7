package sqldb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandaldf/sqlfrag"
)

type Contact struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
}

type Order struct {
	ID        int64     `db:"id"`
	ContactID int64     `db:"contactId"`
	Total     float64   `db:"total"`
	CreatedAt time.Time `db:"createdAt"`
	Note      *string   `db:"note"`
}

func testRegistry(t *testing.T) *sqlfrag.Registry {
	t.Helper()
	r := sqlfrag.NewRegistry()
	_, err := r.Define(sqlfrag.TableDef{
		Name:  "Contact",
		Model: Contact{},
		Columns: []sqlfrag.ColumnDef{
			{Prop: "id", Type: "INTEGER", AutoIncrement: true},
			{Prop: "name", Type: "TEXT", Required: true},
			{Prop: "email", Type: "TEXT", Required: true, Unique: true, Index: true},
		},
	})
	require.NoError(t, err)
	_, err = r.Define(sqlfrag.TableDef{
		Name:  "Order",
		Model: Order{},
		Columns: []sqlfrag.ColumnDef{
			{Prop: "id", Type: "INTEGER", AutoIncrement: true},
			{Prop: "contactId", Type: "INTEGER", Required: true, References: &sqlfrag.Reference{Table: "Contact"}},
			{Prop: "total", Type: "DOUBLE"},
			{Prop: "createdAt", Type: "DATETIME", Default: sqlfrag.DefaultNow},
			{Prop: "note", Type: "TEXT"},
		},
	})
	require.NoError(t, err)
	return r
}

var quiet = sqlfrag.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

// newMockConn connects the test registry to a sqlmock database matching SQL
// text exactly.
func newMockConn(t *testing.T, drv *sqlfrag.Driver) (*sqlfrag.Conn, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqldb.Close()
	})
	db, err := sqlfrag.New(sqlfrag.WithRegistry(testRegistry(t))).Connect(New(sqldb, drv), quiet)
	require.NoError(t, err)
	return db, mock
}

func TestConn_AllIntoStructs(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	c := db.Composer()

	mock.ExpectQuery("SELECT \"id\", \"name\", \"email\"\n  FROM \"Contact\"\n WHERE \"id\" IN (?,?)").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow(int64(1), "Ann", "ann@example.com").
			AddRow(int64(2), "Bob", []byte("bob@example.com")))

	var got []Contact
	q := c.From("Contact").Where(sqlfrag.Ops{"in": map[string]any{"id": []int64{1, 2}}})
	require.NoError(t, db.All(context.Background(), q, &got))
	assert.Equal(t, []Contact{
		{ID: 1, Name: "Ann", Email: "ann@example.com"},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
	}, got)
}

func TestConn_AllIntoPointers(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	mock.ExpectQuery(`SELECT name AS "Name", 7 AS extra FROM x`).
		WillReturnRows(sqlmock.NewRows([]string{"Name", "extra"}).AddRow("Ann", int64(7)))

	got := []*Contact{{Name: "stale"}}
	require.NoError(t, db.All(context.Background(), sqlfrag.Raw(`SELECT name AS "Name", 7 AS extra FROM x`, nil), &got))
	require.Len(t, got, 1)
	assert.Equal(t, &Contact{Name: "Ann"}, got[0])
}

func TestConn_PostgresPlaceholders(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.Postgres())
	c := db.Composer()

	mock.ExpectQuery("SELECT TRUE\n  FROM \"Contact\"\n WHERE \"id\" = $1\n    OR \"name\" = $1\n LIMIT 1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

	q := c.From("Contact").Where(c.IDEquals(5)).Or(func(r ...sqlfrag.Ref) sqlfrag.Fragment {
		return sqlfrag.Expr("{} = $id", r[0].Col("name"))
	}).Exists()
	v, err := db.Value(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestConn_OneNoRows(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	c := db.Composer()
	mock.ExpectQuery("SELECT \"id\", \"name\", \"email\"\n  FROM \"Contact\"\n WHERE \"id\" = ?").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}))

	var got Contact
	err := db.One(context.Background(), c.From("Contact").Where(c.IDEquals(99)), &got)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestConn_OneIgnoresExtraRows(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	mock.ExpectQuery("SELECT n FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)).AddRow(int64(2)))

	var n int
	require.NoError(t, db.One(context.Background(), sqlfrag.Raw("SELECT n FROM t", nil), &n))
	assert.Equal(t, 1, n)
}

func TestConn_ConvertersOnHydration(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	c := db.Composer()
	const query = "SELECT \"id\", \"contactId\", \"total\", \"createdAt\", \"note\"\n  FROM \"Order\""
	cols := []string{"id", "contactId", "total", "createdAt", "note"}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(int64(1), int64(2), 9.5, "2024-01-02T03:04:05.000Z", nil).
		AddRow(int64(2), int64(2), 1.0, "2024-01-02 03:04:05", "gift"))

	var orders []Order
	require.NoError(t, db.All(context.Background(), c.From("Order"), &orders))
	require.Len(t, orders, 2)
	assert.True(t, at.Equal(orders[0].CreatedAt))
	assert.True(t, at.Equal(orders[1].CreatedAt))
	assert.Nil(t, orders[0].Note)
	require.NotNil(t, orders[1].Note)
	assert.Equal(t, "gift", *orders[1].Note)
	assert.Equal(t, 9.5, orders[0].Total)

	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(int64(1), int64(2), 9.5, "2024-01-02T03:04:05.000Z", nil))

	var rows []map[string]any
	require.NoError(t, db.All(context.Background(), c.From("Order"), &rows))
	require.Len(t, rows, 1)
	assert.True(t, at.Equal(rows[0]["createdAt"].(time.Time)))
	assert.Equal(t, int64(2), rows[0]["contactId"])

	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(int64(1), int64(2), 9.5, "not a date", nil))
	err := db.All(context.Background(), c.From("Order"), &orders)
	assert.ErrorIs(t, err, sqlfrag.ErrUnsupportedConverter)
}

func TestConn_Exec(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	mock.ExpectExec(`INSERT INTO "Contact" ("name", "email") VALUES (?, ?)`).
		WithArgs("Ann", "ann@example.com").
		WillReturnResult(sqlmock.NewResult(5, 1))

	ch, err := db.Insert(context.Background(), nil, Contact{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, sqlfrag.Changes{RowsAffected: 1, LastInsertID: 5}, ch)

	mock.ExpectExec(`UPDATE "Contact" SET "name" = ?`).
		WithArgs("x").
		WillReturnResult(sqlmock.NewResult(0, 3))
	ch, err = db.Exec(context.Background(), db.Composer().Update("Contact").Set(map[string]any{"name": "x"}).AllRows())
	require.NoError(t, err)
	assert.Equal(t, int64(3), ch.RowsAffected)
}

func TestConn_ArraysDecodeText(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())
	mock.ExpectQuery("SELECT a, b FROM t").
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("a").OfType("TEXT", ""),
			sqlmock.NewColumn("b").OfType("BLOB", []byte(nil)),
		).AddRow([]byte("text"), []byte{0x01}))

	rows, err := db.Arrays(context.Background(), sqlfrag.Raw("SELECT a, b FROM t", nil))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"text", []byte{0x01}}}, rows)
}

func TestConn_BindErrors(t *testing.T) {
	db, mock := newMockConn(t, sqlfrag.SQLite())

	err := db.Run(context.Background(), sqlfrag.Raw("DELETE FROM t WHERE id = $id", nil))
	assert.ErrorIs(t, err, ErrParamMissing)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	var n []int
	err = db.All(context.Background(), sqlfrag.Raw("SELECT 1", nil), n)
	assert.ErrorContains(t, err, "non-nil pointer")
}

func TestStmt(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer sqldb.Close()

	conn := New(sqldb, sqlfrag.MySQL())
	assert.Same(t, sqldb, conn.DB())
	assert.Equal(t, "mysql", conn.Driver().Name)

	st, err := conn.Prepare(context.Background(), "SELECT $a, `$b`")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ?, `$b`", st.(*Stmt).SQL())
	assert.NoError(t, st.Close())

	again, err := conn.Prepare(context.Background(), "SELECT $a, `$b`")
	require.NoError(t, err)
	assert.Same(t, st.(*Stmt).tpl, again.(*Stmt).tpl, "compiled statements are cached")

	mock.ExpectQuery("SELECT a, b FROM t").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).AddRow(int64(1), int64(2)))
	st, err = conn.Prepare(context.Background(), "SELECT a, b FROM t")
	require.NoError(t, err)
	var n int
	err = st.One(context.Background(), nil, &n)
	assert.ErrorContains(t, err, "requires 1 column")

	mock.ExpectQuery("SELECT a, b FROM t").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}))
	row, err := st.Array(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open("mysql", "not a dsn")
	assert.Error(t, err)

	for driver, dsn := range map[string]string{
		"mysql":    "user:secret@tcp(127.0.0.1:3306)/app",
		"postgres": "postgres://user@127.0.0.1:5432/app?sslmode=disable",
		"pgx":      "postgres://user@127.0.0.1:5432/app",
	} {
		conn, err := Open(driver, dsn)
		if assert.NoError(t, err, driver) {
			assert.NotNil(t, conn.Driver().Schema)
			assert.NoError(t, conn.Close())
		}
	}
}

func TestClose_NonCloser(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := sqldb.Begin()
	require.NoError(t, err)
	assert.NoError(t, New(tx, sqlfrag.SQLite()).Close())
	require.NoError(t, tx.Rollback())
}
