// Command sqlfrag renders and applies the DDL of a YAML table schema.
package main

import (
	"fmt"
	"os"

	"github.com/gandaldf/sqlfrag/cmd/sqlfrag/commands"
)

// Version is set by the build.
var Version = "dev"

func main() {
	if err := commands.NewRootCommand(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
