// Package sqldb runs sqlfrag statements on database/sql. It rewrites $name
// placeholders to the driver's native form, binds the statement params and
// scans rows into structs, maps or plain values.
//
//	conn, err := sqldb.Open("sqlite", ":memory:")
//	db, err := sqlfrag.New(sqlfrag.WithRegistry(reg)).Connect(conn)
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/gandaldf/sqlfrag"
	"github.com/gandaldf/sqlfrag/internal/fieldmap"
)

// DB abstracts *sql.DB, *sql.Conn and *sql.Tx for easy testing.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config defines limits of the placeholder binder.
type Config struct {
	// MaxParams limits the number of placeholders of a single statement.
	// If = 0 (or omitted), it uses a sensible per-dialect default.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the length of a placeholder name. Names longer than
	// this cause ErrParamNameTooLong.
	MaxNameLen int
}

var (
	ErrParamMissing     = errors.New("sqldb: missing parameter")
	ErrTooManyParams    = errors.New("sqldb: too many parameters")
	ErrParamNameTooLong = errors.New("sqldb: parameter name too long")
	ErrFieldAmbiguous   = errors.New("sqldb: ambiguous field name")
	ErrUnknownDriver    = errors.New("sqldb: unknown driver")
)

// Conn implements sqlfrag.Connection over a DB. It is safe for concurrent use
// when the DB is.
type Conn struct {
	db        DB
	driver    *sqlfrag.Driver
	flavor    flavor
	config    Config
	templates *fieldmap.Cache[string, *template]
}

// New returns a connection running statements on db with the dialect and
// schema of driver. Optionally provide a Config; unspecified fields fall back
// to per-dialect defaults.
func New(db DB, driver *sqlfrag.Driver, cfg ...Config) *Conn {
	fl := flavorOf(driver.Name)
	return &Conn{
		db:        db,
		driver:    driver,
		flavor:    fl,
		config:    defaultConfig(fl, cfg...),
		templates: fieldmap.NewCache[string, *template](fieldmap.DefaultCacheSize),
	}
}

// Open opens a database and wraps it. driverName is "sqlite", "mysql",
// "postgres" (lib/pq) or "pgx". MySQL DSNs always get parseTime=true.
func Open(driverName, dsn string, cfg ...Config) (*Conn, error) {
	var (
		db  *sql.DB
		drv *sqlfrag.Driver
	)
	switch driverName {
	case "sqlite", "sqlite3":
		var err error
		if db, err = sql.Open("sqlite", dsn); err != nil {
			return nil, err
		}
		if strings.Contains(dsn, ":memory:") {
			// every pooled connection would open its own empty database
			db.SetMaxOpenConns(1)
		}
		drv = sqlfrag.SQLite()

	case "mysql":
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldb: mysql dsn: %w", err)
		}
		mc.ParseTime = true
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, err
		}
		db = sql.OpenDB(connector)
		drv = sqlfrag.MySQL()

	case "postgres", "postgresql":
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldb: postgres dsn: %w", err)
		}
		db = sql.OpenDB(connector)
		drv = sqlfrag.Postgres()

	case "pgx":
		pc, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldb: pgx dsn: %w", err)
		}
		db = stdlib.OpenDB(*pc)
		drv = sqlfrag.Postgres()

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driverName)
	}
	return New(db, drv, cfg...), nil
}

// Driver returns the dialect and schema of the connection.
func (c *Conn) Driver() *sqlfrag.Driver { return c.driver }

// DB returns the wrapped database handle.
func (c *Conn) DB() DB { return c.db }

// Close closes the wrapped handle when it is an io.Closer (*sql.DB is;
// *sql.Tx is not).
func (c *Conn) Close() error {
	if cl, ok := c.db.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Prepare rewrites the placeholders of query. Compiled statements are cached
// by their SQL text.
func (c *Conn) Prepare(_ context.Context, query string) (sqlfrag.Stmt, error) {
	t, ok := c.templates.Get(query)
	if !ok {
		var err error
		if t, err = compile(c.flavor, query, c.config); err != nil {
			return nil, err
		}
		c.templates.Put(query, t)
	}
	return &Stmt{conn: c, tpl: t, target: target{schema: c.driver.Schema}}, nil
}

// Stmt is a compiled statement. It holds no database resources.
type Stmt struct {
	conn   *Conn
	tpl    *template
	target target
}

// SQL returns the statement with native placeholders.
func (s *Stmt) SQL() string { return s.tpl.sql }

// As returns a copy of s hydrating rows of meta.
func (s *Stmt) As(meta *sqlfrag.TableMeta) sqlfrag.Stmt {
	cp := *s
	cp.target.meta = meta
	return &cp
}

// Close is a no-op.
func (s *Stmt) Close() error { return nil }

func (s *Stmt) query(ctx context.Context, params sqlfrag.Params) (*sql.Rows, *result, error) {
	args, err := s.tpl.args(params)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.conn.db.QueryContext(ctx, s.tpl.sql, args...)
	if err != nil {
		return nil, nil, err
	}
	r, err := newResult(rows)
	if err != nil {
		rows.Close()
		return nil, nil, err
	}
	return rows, r, nil
}

// All scans every row into dest, a pointer to a slice.
func (s *Stmt) All(ctx context.Context, params sqlfrag.Params, dest any) error {
	rows, r, err := s.query(ctx, params)
	if err != nil {
		return err
	}
	defer rows.Close()
	return r.scanAll(dest, s.target)
}

// One scans the first row into dest. It returns sql.ErrNoRows if no rows are
// returned; further rows are ignored.
func (s *Stmt) One(ctx context.Context, params sqlfrag.Params, dest any) error {
	rows, r, err := s.query(ctx, params)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := r.scanOne(dest, s.target); err != nil {
		return err
	}
	return rows.Close()
}

// Array returns the values of the first row, nil without rows.
func (s *Stmt) Array(ctx context.Context, params sqlfrag.Params) ([]any, error) {
	rows, r, err := s.query(ctx, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return r.values()
}

// Value returns the first column of the first row, nil without rows.
func (s *Stmt) Value(ctx context.Context, params sqlfrag.Params) (any, error) {
	row, err := s.Array(ctx, params)
	if err != nil || len(row) == 0 {
		return nil, err
	}
	return row[0], nil
}

// Arrays returns the values of every row.
func (s *Stmt) Arrays(ctx context.Context, params sqlfrag.Params) ([][]any, error) {
	rows, r, err := s.query(ctx, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals, err := r.values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (s *Stmt) exec(ctx context.Context, params sqlfrag.Params) (sql.Result, error) {
	args, err := s.tpl.args(params)
	if err != nil {
		return nil, err
	}
	return s.conn.db.ExecContext(ctx, s.tpl.sql, args...)
}

// Exec runs a write. LastInsertID is 0 on drivers that do not report it.
func (s *Stmt) Exec(ctx context.Context, params sqlfrag.Params) (sqlfrag.Changes, error) {
	res, err := s.exec(ctx, params)
	if err != nil {
		return sqlfrag.Changes{}, err
	}
	var ch sqlfrag.Changes
	if ch.RowsAffected, err = res.RowsAffected(); err != nil {
		return sqlfrag.Changes{}, err
	}
	if id, err := res.LastInsertId(); err == nil {
		ch.LastInsertID = id
	}
	return ch, nil
}

// Run executes the statement and discards its result.
func (s *Stmt) Run(ctx context.Context, params sqlfrag.Params) error {
	_, err := s.exec(ctx, params)
	return err
}

// defaultConfig merges user config with per-dialect defaults.
func defaultConfig(fl flavor, config ...Config) Config {
	c := Config{}
	if len(config) > 0 {
		c = config[0]
	}
	if c.MaxParams == 0 {
		switch fl {
		case flavorSQLite:
			c.MaxParams = 999
		case flavorMySQL, flavorPostgres:
			c.MaxParams = 65535
		}
	}
	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 64
	}
	return c
}
