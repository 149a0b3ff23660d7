// Package commands implements the sqlfrag CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlfrag"
)

// app holds the state shared by every command.
type app struct {
	schemaPath string
	naming     string
	noColor    bool
	verbose    bool
	logger     *slog.Logger
}

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
)

// NewRootCommand returns the sqlfrag command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	root := &cobra.Command{
		Use:           "sqlfrag",
		Short:         "Render and apply SQL schemas",
		Long:          "sqlfrag renders CREATE TABLE and DML statements from a YAML table schema for SQLite, MySQL and PostgreSQL.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.schemaPath, "schema", "schema.yaml", "Path to the YAML table schema")
	pf.StringVar(&a.naming, "naming", "default", "Naming strategy: default or snake")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log executed statements")

	root.AddCommand(newDDLCommand(a))
	root.AddCommand(newDMLCommand(a))
	root.AddCommand(newApplyCommand(a))
	return root
}

func (a *app) setup(stderr io.Writer) error {
	if a.noColor {
		color.NoColor = true
	}
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("cannot load .env", "error", err)
	}
	return nil
}

// registry loads the schema file.
func (a *app) registry() (*sqlfrag.Registry, error) {
	reg := sqlfrag.NewRegistry()
	if err := reg.LoadYAMLFile(a.schemaPath); err != nil {
		return nil, fmt.Errorf("load %s: %w", a.schemaPath, err)
	}
	return reg, nil
}

func (a *app) strategy() (sqlfrag.NamingStrategy, error) {
	switch a.naming {
	case "", "default":
		return sqlfrag.DefaultStrategy{}, nil
	case "snake":
		return sqlfrag.SnakeCaseStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown naming strategy %q", a.naming)
}

// driver returns the driver description named dialect.
func (a *app) driver(dialect string) (*sqlfrag.Driver, error) {
	naming, err := a.strategy()
	if err != nil {
		return nil, err
	}
	d, ok := sqlfrag.DriverFor(dialect, naming)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	return d, nil
}

// composer loads the schema and binds it to the dialect.
func (a *app) composer(dialect string) (*sqlfrag.Composer, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	d, err := a.driver(dialect)
	if err != nil {
		return nil, err
	}
	return sqlfrag.New(sqlfrag.WithRegistry(reg), sqlfrag.WithDriver(d)), nil
}

func envDSN() string { return os.Getenv("DATABASE_URL") }
