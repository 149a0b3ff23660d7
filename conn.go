package sqlfrag

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Changes reports the effect of a write.
type Changes struct {
	RowsAffected int64
	LastInsertID int64
}

// Connection is the contract a database driver implements. The composer never
// reaches past it.
type Connection interface {
	// Driver returns the dialect and schema the connection speaks.
	Driver() *Driver
	// Prepare prepares sql, which still carries $name placeholders.
	Prepare(ctx context.Context, sql string) (Stmt, error)
	Close() error
}

// Stmt is a prepared statement. Params bind the $name placeholders.
type Stmt interface {
	// All scans every row into dest, a pointer to a slice.
	All(ctx context.Context, params Params, dest any) error
	// One scans the first row into dest, a pointer.
	One(ctx context.Context, params Params, dest any) error
	// Value returns the first column of the first row, nil without rows.
	Value(ctx context.Context, params Params) (any, error)
	// Array returns the values of the first row.
	Array(ctx context.Context, params Params) ([]any, error)
	// Arrays returns the values of every row.
	Arrays(ctx context.Context, params Params) ([][]any, error)
	// Exec runs a write.
	Exec(ctx context.Context, params Params) (Changes, error)
	// Run executes the statement and discards its result.
	Run(ctx context.Context, params Params) error
	// As returns a statement hydrating rows of meta, applying its converters.
	As(meta *TableMeta) Stmt
	Close() error
}

// Conn runs composed statements over a Connection.
type Conn struct {
	conn   Connection
	c      *Composer
	schema *Schema
	logger *slog.Logger
	slow   time.Duration
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithLogger sets the logger used for statement tracing (debug) and driver
// failures (warn). The default is slog.Default().
func WithLogger(l *slog.Logger) ConnOption {
	return func(db *Conn) { db.logger = l }
}

// WithSlowThreshold logs statements running longer than d at warn level.
func WithSlowThreshold(d time.Duration) ConnOption {
	return func(db *Conn) { db.slow = d }
}

// Connect returns a Conn running statements on conn. Queries should be built
// with Conn.Composer so they use the connection's dialect.
func (c *Composer) Connect(conn Connection, opts ...ConnOption) (*Conn, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: no connection", ErrDriverUnavailable)
	}
	d := conn.Driver()
	if d == nil || d.Schema == nil {
		return nil, fmt.Errorf("%w: connection has no driver schema", ErrDriverUnavailable)
	}
	composer := c
	if c.driver != d {
		composer = New(WithRegistry(c.registry), WithDriver(d))
	}
	schema, err := composer.Schema()
	if err != nil {
		return nil, err
	}
	db := &Conn{conn: conn, c: composer, schema: schema, logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Composer returns the composer bound to the connection's driver.
func (db *Conn) Composer() *Composer { return db.c }

// Schema returns the schema renderer of the connection.
func (db *Conn) Schema() *Schema { return db.schema }

// Close closes the underlying connection.
func (db *Conn) Close() error { return db.conn.Close() }

// Async returns the asynchronous view of db.
func (db *Conn) Async() *AsyncConn { return &AsyncConn{db: db} }

func (db *Conn) prepare(ctx context.Context, q Query) (Stmt, Statement, error) {
	if q == nil {
		return nil, Statement{}, fmt.Errorf("%w: nil query", ErrInvalidFragment)
	}
	st, err := q.Build()
	if err != nil {
		return nil, Statement{}, err
	}
	db.logger.DebugContext(ctx, "prepare", "sql", st.SQL, "params", st.Params)
	stmt, err := db.conn.Prepare(ctx, st.SQL)
	if err != nil {
		db.logger.WarnContext(ctx, "prepare failed", "sql", st.SQL, "error", err)
		return nil, Statement{}, err
	}
	if st.Into != nil {
		stmt = stmt.As(st.Into)
	}
	return stmt, st, nil
}

// run prepares q and hands the statement to fn, closing it afterwards.
func (db *Conn) run(ctx context.Context, q Query, fn func(Stmt, Statement) error) error {
	stmt, st, err := db.prepare(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	start := time.Now()
	err = fn(stmt, st)
	if d := time.Since(start); db.slow > 0 && d > db.slow {
		db.logger.WarnContext(ctx, "slow query detected", "duration", d, "sql", st.SQL, "params", st.Params)
	}
	if err != nil {
		db.logger.WarnContext(ctx, "statement failed", "sql", st.SQL, "error", err)
	}
	return err
}

// All scans every row of q into dest, a pointer to a slice.
func (db *Conn) All(ctx context.Context, q Query, dest any) error {
	return db.run(ctx, q, func(s Stmt, st Statement) error {
		return s.All(ctx, st.Params, dest)
	})
}

// One scans the first row of q into dest.
func (db *Conn) One(ctx context.Context, q Query, dest any) error {
	return db.run(ctx, q, func(s Stmt, st Statement) error {
		return s.One(ctx, st.Params, dest)
	})
}

// Column returns the first column of every row.
func (db *Conn) Column(ctx context.Context, q Query) ([]any, error) {
	rows, err := db.Arrays(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, r[0])
		}
	}
	return out, nil
}

// Value returns the first column of the first row. For statements built by
// Exists the value is a bool.
func (db *Conn) Value(ctx context.Context, q Query) (any, error) {
	var v any
	err := db.run(ctx, q, func(s Stmt, st Statement) error {
		var err error
		v, err = s.Value(ctx, st.Params)
		if err == nil && st.Shape == ShapeBool {
			v = truthy(v)
		}
		return err
	})
	return v, err
}

// Arrays returns the values of every row.
func (db *Conn) Arrays(ctx context.Context, q Query) ([][]any, error) {
	var rows [][]any
	err := db.run(ctx, q, func(s Stmt, st Statement) error {
		var err error
		rows, err = s.Arrays(ctx, st.Params)
		return err
	})
	return rows, err
}

// Array returns the values of the first row.
func (db *Conn) Array(ctx context.Context, q Query) ([]any, error) {
	var row []any
	err := db.run(ctx, q, func(s Stmt, st Statement) error {
		var err error
		row, err = s.Array(ctx, st.Params)
		return err
	})
	return row, err
}

// Exec runs a write.
func (db *Conn) Exec(ctx context.Context, q Query) (Changes, error) {
	var ch Changes
	err := db.run(ctx, q, func(s Stmt, st Statement) error {
		var err error
		ch, err = s.Exec(ctx, st.Params)
		return err
	})
	return ch, err
}

// Run executes q, discarding its result.
func (db *Conn) Run(ctx context.Context, q Query) error {
	return db.run(ctx, q, func(s Stmt, st Statement) error {
		return s.Run(ctx, st.Params)
	})
}

// tableOf resolves table, or the registered model of row when table is nil.
func (db *Conn) tableOf(table, row any) (*TableMeta, error) {
	if table != nil {
		return db.c.resolve(table)
	}
	return db.c.registry.Lookup(row)
}

func writeOptions(opts []WriteOptions) WriteOptions {
	if len(opts) == 0 {
		return WriteOptions{}
	}
	return opts[0]
}

// narrow applies OnlyWithValues to o for row.
func narrow(meta *TableMeta, row any, o WriteOptions) WriteOptions {
	if len(o.OnlyProps) == 0 && o.OnlyWithValues {
		o.OnlyProps = PropsWithValues(meta, row)
	}
	return o
}

// Insert inserts row into table. A nil table is resolved from the row's
// registered model.
func (db *Conn) Insert(ctx context.Context, table, row any, opts ...WriteOptions) (Changes, error) {
	if row == nil {
		return Changes{}, nil
	}
	meta, err := db.tableOf(table, row)
	if err != nil {
		return Changes{}, err
	}
	o := narrow(meta, row, writeOptions(opts))
	sql, err := db.schema.Insert(meta, o)
	if err != nil {
		return Changes{}, err
	}
	params, err := db.schema.ToDbObject(meta, row, o)
	if err != nil {
		return Changes{}, err
	}
	return db.Exec(ctx, Statement{SQL: sql, Params: params})
}

// InsertAll inserts every element of rows, a slice, and returns the summed
// changes with the last insert id.
func (db *Conn) InsertAll(ctx context.Context, table, rows any, opts ...WriteOptions) (Changes, error) {
	rv := reflect.ValueOf(rows)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Changes{}, fmt.Errorf("%w: InsertAll expects a slice, got %T", ErrInvalidFragment, rows)
	}
	var total Changes
	for i := 0; i < rv.Len(); i++ {
		ch, err := db.Insert(ctx, table, rv.Index(i).Interface(), opts...)
		if err != nil {
			return total, err
		}
		total.RowsAffected += ch.RowsAffected
		total.LastInsertID = ch.LastInsertID
	}
	return total, nil
}

// Update updates row by primary key.
func (db *Conn) Update(ctx context.Context, table, row any, opts ...WriteOptions) (Changes, error) {
	if row == nil {
		return Changes{}, nil
	}
	meta, err := db.tableOf(table, row)
	if err != nil {
		return Changes{}, err
	}
	o := narrow(meta, row, writeOptions(opts))
	if len(o.OnlyProps) > 0 {
		o.OnlyProps = slices.Clone(o.OnlyProps)
		for _, pk := range meta.pks {
			if !slices.Contains(o.OnlyProps, pk.Prop) {
				o.OnlyProps = append(o.OnlyProps, pk.Prop)
			}
		}
	}
	sql, err := db.schema.Update(meta, o)
	if err != nil {
		return Changes{}, err
	}
	params, err := db.schema.ToDbObject(meta, row, o)
	if err != nil {
		return Changes{}, err
	}
	return db.Exec(ctx, Statement{SQL: sql, Params: params})
}

// Delete deletes row by primary key, plus any extra Where conditions.
func (db *Conn) Delete(ctx context.Context, table, row any, opts ...WriteOptions) (Changes, error) {
	if row == nil {
		return Changes{}, nil
	}
	meta, err := db.tableOf(table, row)
	if err != nil {
		return Changes{}, err
	}
	o := writeOptions(opts)
	sql, err := db.schema.Delete(meta, o)
	if err != nil {
		return Changes{}, err
	}
	keys := make([]string, 0, len(meta.pks))
	for _, pk := range meta.pks {
		keys = append(keys, pk.Prop)
	}
	params := Params{}
	if len(keys) > 0 {
		if params, err = db.schema.ToDbObject(meta, row, WriteOptions{OnlyProps: keys}); err != nil {
			return Changes{}, err
		}
	}
	return db.Exec(ctx, Statement{SQL: sql, Params: params})
}

// CreateTable creates table and its indexes.
func (db *Conn) CreateTable(ctx context.Context, table any) error {
	meta, err := db.c.resolve(table)
	if err != nil {
		return err
	}
	sql, err := db.schema.CreateTable(meta)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(sql) {
		if err := db.Run(ctx, Raw(stmt, nil)); err != nil {
			return err
		}
	}
	return nil
}

// DropTable drops table if it exists.
func (db *Conn) DropTable(ctx context.Context, table any) error {
	meta, err := db.c.resolve(table)
	if err != nil {
		return err
	}
	return db.Run(ctx, Raw(db.schema.DropTable(meta), nil))
}

// ListTables returns the names of the user tables.
func (db *Conn) ListTables(ctx context.Context) ([]string, error) {
	vals, err := db.Column(ctx, Raw(db.schema.TableNamesSQL(), nil))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		switch s := v.(type) {
		case string:
			out = append(out, s)
		case []byte:
			out = append(out, string(s))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}

// splitStatements splits the output of CreateTable into single statements,
// since most drivers prepare one statement at a time.
func splitStatements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";\n") {
		s = strings.TrimSuffix(strings.TrimSpace(s), ";")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truthy converts a database value to bool the way EXISTS results come back
// from the supported engines.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []byte:
		return truthy(string(x))
	case string:
		if b, err := strconv.ParseBool(x); err == nil {
			return b
		}
		n, err := strconv.ParseFloat(x, 64)
		return err == nil && n != 0
	}
	rv := reflect.ValueOf(v)
	return !rv.IsZero()
}
