package sqlfrag

import (
	"fmt"
)

// Composer builds statements against one registry and one driver. It holds no
// per-query state and is safe for concurrent use once the registry is set up.
type Composer struct {
	registry *Registry
	driver   *Driver
	dialect  Dialect
}

// Option configures a Composer.
type Option func(*Composer)

// WithRegistry makes the composer resolve tables in r.
func WithRegistry(r *Registry) Option {
	return func(c *Composer) { c.registry = r }
}

// WithDriver wires the dialect and schema of d.
func WithDriver(d *Driver) Option {
	return func(c *Composer) { c.driver = d }
}

// New returns a Composer. Without WithRegistry it gets an empty registry;
// without WithDriver identifiers are quoted the SQLite way and every
// operation that needs a schema fails with ErrDriverUnavailable.
func New(opts ...Option) *Composer {
	c := &Composer{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.driver != nil && c.driver.Dialect != nil {
		c.dialect = c.driver.Dialect
	} else {
		c.dialect = &SQLiteDialect{}
	}
	return c
}

// Registry returns the table registry.
func (c *Composer) Registry() *Registry { return c.registry }

// Dialect returns the dialect identifiers and limits are rendered with.
func (c *Composer) Dialect() Dialect { return c.dialect }

// Driver returns the wired driver.
func (c *Composer) Driver() (*Driver, error) {
	if c.driver == nil {
		return nil, fmt.Errorf("%w: no driver configured", ErrDriverUnavailable)
	}
	return c.driver, nil
}

// Schema returns the DDL/DML renderer of the wired driver, bound to the
// composer's registry for foreign key resolution.
func (c *Composer) Schema() (*Schema, error) {
	d, err := c.Driver()
	if err != nil {
		return nil, err
	}
	if d.Schema == nil {
		return nil, fmt.Errorf("%w: driver %s has no schema", ErrDriverUnavailable, d.Name)
	}
	return d.Schema.bind(c.registry), nil
}

// Quote quotes name as an identifier.
func (c *Composer) Quote(name string) string { return c.dialect.Quote(name) }

// QuoteTable quotes a table name.
func (c *Composer) QuoteTable(name string) string { return c.dialect.QuoteTable(name) }

// QuoteColumn quotes a column name.
func (c *Composer) QuoteColumn(name string) string { return c.dialect.QuoteColumn(name) }

// IDEquals returns a condition matching the id column of the root table,
// bound to the named param $id.
func (c *Composer) IDEquals(id any) ExprFunc {
	return func(refs ...Ref) Fragment {
		if len(refs) == 0 {
			return Fragment{err: fmt.Errorf("%w: IDEquals needs a table reference", ErrInvalidFragment)}
		}
		f := Expr("{} = $id", refs[0].Col("id"))
		if f.err == nil {
			f.Params["id"] = id
		}
		return f
	}
}
