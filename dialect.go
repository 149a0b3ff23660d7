package sqlfrag

import (
	"fmt"
	"strings"
)

// Dialect holds the identifier quoting and pagination rules of one database
// engine.
type Dialect interface {
	// Name identifies the engine: "sqlite", "mysql" or "postgres".
	Name() string
	// Quote quotes name as an identifier unless it is already quoted.
	Quote(name string) string
	// QuoteTable applies the naming strategy to a table name and quotes it.
	QuoteTable(name string) string
	// QuoteColumn applies the naming strategy to a column name and quotes it.
	QuoteColumn(name string) string
	// Limit renders the pagination clause with $limit/$offset params.
	// Zero means unset; both unset is an error carried by the fragment.
	Limit(offset, limit int) Fragment
}

// MySQLMaxLimit is the LIMIT used by MySQL when only an offset is requested.
const MySQLMaxLimit = "18446744073709551615"

// quoter implements the identifier half of a Dialect.
type quoter struct {
	quote  string
	naming NamingStrategy
}

func (q quoter) strategy() NamingStrategy {
	if q.naming == nil {
		return DefaultStrategy{}
	}
	return q.naming
}

func (q quoter) Quote(name string) string {
	if isQuoted(name) {
		return name
	}
	return q.quote + strings.ReplaceAll(name, q.quote, q.quote+q.quote) + q.quote
}

func (q quoter) QuoteTable(name string) string {
	if isQuoted(name) {
		return name
	}
	return q.Quote(q.strategy().TableName(name))
}

func (q quoter) QuoteColumn(name string) string {
	if isQuoted(name) {
		return name
	}
	return q.Quote(q.strategy().ColumnName(name))
}

func invalidLimit(offset, limit int) Fragment {
	return Fragment{err: fmt.Errorf("%w: limit(offset=%d, limit=%d)", ErrInvalidFragment, offset, limit)}
}

// SQLiteDialect is the generic dialect: double-quoted identifiers and a
// LIMIT clause that is always present (-1 when only an offset is given).
type SQLiteDialect struct {
	Naming NamingStrategy
}

func (d *SQLiteDialect) q() quoter { return quoter{quote: `"`, naming: d.Naming} }

func (d *SQLiteDialect) Name() string                   { return "sqlite" }
func (d *SQLiteDialect) Quote(name string) string       { return d.q().Quote(name) }
func (d *SQLiteDialect) QuoteTable(name string) string  { return d.q().QuoteTable(name) }
func (d *SQLiteDialect) QuoteColumn(name string) string { return d.q().QuoteColumn(name) }

func (d *SQLiteDialect) Limit(offset, limit int) Fragment {
	switch {
	case offset <= 0 && limit <= 0:
		return invalidLimit(offset, limit)
	case offset > 0:
		if limit <= 0 {
			limit = -1
		}
		return Fragment{SQL: "LIMIT $limit OFFSET $offset", Params: Params{"limit": limit, "offset": offset}}
	default:
		return Fragment{SQL: "LIMIT $limit", Params: Params{"limit": limit}}
	}
}

// MySQLDialect quotes identifiers with backticks and has no OFFSET-only form.
type MySQLDialect struct {
	Naming NamingStrategy
}

func (d *MySQLDialect) q() quoter { return quoter{quote: "`", naming: d.Naming} }

func (d *MySQLDialect) Name() string                   { return "mysql" }
func (d *MySQLDialect) Quote(name string) string       { return d.q().Quote(name) }
func (d *MySQLDialect) QuoteTable(name string) string  { return d.q().QuoteTable(name) }
func (d *MySQLDialect) QuoteColumn(name string) string { return d.q().QuoteColumn(name) }

func (d *MySQLDialect) Limit(offset, limit int) Fragment {
	switch {
	case offset <= 0 && limit <= 0:
		return invalidLimit(offset, limit)
	case offset > 0 && limit > 0:
		return Fragment{SQL: "LIMIT $offset, $limit", Params: Params{"offset": offset, "limit": limit}}
	case offset > 0:
		return Fragment{SQL: "LIMIT $offset, " + MySQLMaxLimit, Params: Params{"offset": offset}}
	default:
		return Fragment{SQL: "LIMIT $limit", Params: Params{"limit": limit}}
	}
}

// PostgresDialect quotes identifiers with double quotes and supports
// OFFSET without LIMIT.
type PostgresDialect struct {
	Naming NamingStrategy
}

func (d *PostgresDialect) q() quoter { return quoter{quote: `"`, naming: d.Naming} }

func (d *PostgresDialect) Name() string                   { return "postgres" }
func (d *PostgresDialect) Quote(name string) string       { return d.q().Quote(name) }
func (d *PostgresDialect) QuoteTable(name string) string  { return d.q().QuoteTable(name) }
func (d *PostgresDialect) QuoteColumn(name string) string { return d.q().QuoteColumn(name) }

func (d *PostgresDialect) Limit(offset, limit int) Fragment {
	switch {
	case offset <= 0 && limit <= 0:
		return invalidLimit(offset, limit)
	case offset > 0 && limit > 0:
		return Fragment{SQL: "LIMIT $limit OFFSET $offset", Params: Params{"limit": limit, "offset": offset}}
	case offset > 0:
		return Fragment{SQL: "OFFSET $offset", Params: Params{"offset": offset}}
	default:
		return Fragment{SQL: "LIMIT $limit", Params: Params{"limit": limit}}
	}
}
