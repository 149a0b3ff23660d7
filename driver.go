package sqlfrag

// Driver bundles the dialect and schema renderer of one database engine. It
// does not open connections; see the Connection contract.
type Driver struct {
	Name    string
	Dialect Dialect
	Schema  *Schema
}

// SQLite returns the SQLite driver description. It doubles as the generic
// dialect.
func SQLite(naming ...NamingStrategy) *Driver {
	d := &SQLiteDialect{Naming: firstStrategy(naming)}
	return &Driver{Name: "sqlite", Dialect: d, Schema: newSchema(d, sqliteTypes, sqliteFlavor)}
}

// MySQL returns the MySQL driver description.
func MySQL(naming ...NamingStrategy) *Driver {
	d := &MySQLDialect{Naming: firstStrategy(naming)}
	return &Driver{Name: "mysql", Dialect: d, Schema: newSchema(d, mysqlTypes, mysqlFlavor)}
}

// Postgres returns the PostgreSQL driver description.
func Postgres(naming ...NamingStrategy) *Driver {
	d := &PostgresDialect{Naming: firstStrategy(naming)}
	return &Driver{Name: "postgres", Dialect: d, Schema: newSchema(d, postgresTypes, postgresFlavor)}
}

// DriverFor returns the driver description registered under name: "sqlite",
// "mysql", "postgres" (or "pgx").
func DriverFor(name string, naming ...NamingStrategy) (*Driver, bool) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite(naming...), true
	case "mysql":
		return MySQL(naming...), true
	case "postgres", "postgresql", "pgx":
		return Postgres(naming...), true
	}
	return nil, false
}

func firstStrategy(naming []NamingStrategy) NamingStrategy {
	if len(naming) > 0 && naming[0] != nil {
		return naming[0]
	}
	return DefaultStrategy{}
}
