package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlfrag"
	"github.com/gandaldf/sqlfrag/sqldb"
)

func newApplyCommand(a *app) *cobra.Command {
	var (
		driver string
		dsn    string
		drop   bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create every table of the schema in a database",
		Long:  "Create every table of the schema in a database. The DSN defaults to $DATABASE_URL, also read from a .env file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = envDSN()
			}
			if dsn == "" {
				return errors.New("no DSN: pass --dsn or set DATABASE_URL")
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			conn, err := a.open(driver, dsn)
			if err != nil {
				return err
			}
			db, err := sqlfrag.New(sqlfrag.WithRegistry(reg)).Connect(conn, sqlfrag.WithLogger(a.logger))
			if err != nil {
				conn.Close()
				return err
			}
			defer db.Close()
			return apply(cmd.Context(), cmd.OutOrStdout(), db, drop)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "sqlite", "Driver: sqlite, mysql, postgres or pgx")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Data source name (default $DATABASE_URL)")
	cmd.Flags().BoolVar(&drop, "drop", false, "Drop each table before creating it")
	return cmd
}

// open opens dsn and rebinds the connection to the selected naming strategy.
func (a *app) open(driver, dsn string) (*sqldb.Conn, error) {
	conn, err := sqldb.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	d, err := a.driver(conn.Driver().Name)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sqldb.New(conn.DB(), d), nil
}

func apply(ctx context.Context, w io.Writer, db *sqlfrag.Conn, drop bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, meta := range db.Composer().Registry().Tables() {
		if drop {
			if err := db.DropTable(ctx, meta); err != nil {
				return fmt.Errorf("drop %s: %w", meta.Name(), err)
			}
		}
		if err := db.CreateTable(ctx, meta); err != nil {
			return fmt.Errorf("create %s: %w", meta.Name(), err)
		}
		successColor.Fprintf(w, "✓ %s\n", meta.Name())
	}
	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d tables in database\n", len(tables))
	return nil
}
