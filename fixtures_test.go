package sqlfrag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
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
}

// testRegistry defines Contact, Order and a key-less Log table.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := r.Define(TableDef{
		Name:  "Contact",
		Model: Contact{},
		Columns: []ColumnDef{
			{Prop: "id", Type: "INTEGER", AutoIncrement: true},
			{Prop: "name", Type: "TEXT", Required: true},
			{Prop: "email", Type: "TEXT", Required: true, Unique: true},
		},
	})
	require.NoError(t, err)
	_, err = r.Define(TableDef{
		Name:  "Order",
		Model: &Order{},
		Columns: []ColumnDef{
			{Prop: "id", Type: "INTEGER", AutoIncrement: true},
			{Prop: "contactId", Type: "INTEGER", Required: true, References: &Reference{Table: "Contact"}},
			{Prop: "total", Type: "MONEY"},
			{Prop: "createdAt", Type: "DATETIME", Default: DefaultNow},
		},
	})
	require.NoError(t, err)
	_, err = r.Define(TableDef{
		Name:    "Log",
		Columns: []ColumnDef{{Prop: "message", Type: "TEXT"}},
	})
	require.NoError(t, err)
	return r
}

// newTestComposer returns a composer over testRegistry with the SQLite driver.
func newTestComposer(t *testing.T, drv ...*Driver) *Composer {
	t.Helper()
	d := SQLite()
	if len(drv) > 0 {
		d = drv[0]
	}
	return New(WithRegistry(testRegistry(t)), WithDriver(d))
}

func mustBuild(t *testing.T, q Query) Statement {
	t.Helper()
	st, err := q.Build()
	require.NoError(t, err)
	return st
}
