package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlfrag"
)

func newDMLCommand(a *app) *cobra.Command {
	var (
		dialect string
		table   string
	)
	cmd := &cobra.Command{
		Use:   "dml",
		Short: "Print INSERT, UPDATE and DELETE skeletons of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.composer(dialect)
			if err != nil {
				return err
			}
			meta, err := c.Registry().Assert(table)
			if err != nil {
				return err
			}
			return writeDML(cmd.OutOrStdout(), c, meta)
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "sqlite", "Dialect: sqlite, mysql or postgres")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table name")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func writeDML(w io.Writer, c *sqlfrag.Composer, meta *sqlfrag.TableMeta) error {
	schema, err := c.Schema()
	if err != nil {
		return err
	}
	insert, err := schema.Insert(meta, sqlfrag.WriteOptions{})
	if err != nil {
		return err
	}
	headerColor.Fprintln(w, "-- insert")
	fmt.Fprintln(w, insert)

	// tables without a primary key have no by-key statements
	update, err := schema.Update(meta, sqlfrag.WriteOptions{})
	switch {
	case errors.Is(err, sqlfrag.ErrMissingPrimaryKey):
		return nil
	case errors.Is(err, sqlfrag.ErrUnresolvedColumn):
		// key-only table, nothing to SET
	case err != nil:
		return err
	default:
		headerColor.Fprintln(w, "-- update")
		fmt.Fprintln(w, update)
	}

	del, err := schema.Delete(meta, sqlfrag.WriteOptions{})
	if err != nil {
		return err
	}
	headerColor.Fprintln(w, "-- delete")
	fmt.Fprintln(w, del)
	return nil
}
