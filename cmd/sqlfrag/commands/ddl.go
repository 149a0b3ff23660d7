package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlfrag"
)

func newDDLCommand(a *app) *cobra.Command {
	var (
		dialect string
		drop    bool
	)
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print CREATE TABLE statements",
		Long:  "Print CREATE TABLE (and optionally DROP TABLE) statements for every table in definition order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.composer(dialect)
			if err != nil {
				return err
			}
			return writeDDL(cmd.OutOrStdout(), c, drop)
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "sqlite", "Dialect: sqlite, mysql or postgres")
	cmd.Flags().BoolVar(&drop, "drop", false, "Emit DROP TABLE IF EXISTS before each table")
	return cmd
}

func writeDDL(w io.Writer, c *sqlfrag.Composer, drop bool) error {
	schema, err := c.Schema()
	if err != nil {
		return err
	}
	for i, meta := range c.Registry().Tables() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		headerColor.Fprintf(w, "-- %s\n", meta.Name())
		if drop {
			fmt.Fprintf(w, "%s;\n", schema.DropTable(meta))
		}
		sql, err := schema.CreateTable(meta)
		if err != nil {
			return fmt.Errorf("%s: %w", meta.Name(), err)
		}
		fmt.Fprintln(w, strings.TrimRight(sql, "\n"))
	}
	return nil
}
