// Command latticed runs the Lattice REST server and the administrative
// CLI around it: collection lifecycle, index rebuilds, and schema
// provisioning, for whichever of the three supported backends a
// deployment points at.
//
// Grounded on cmd/bd's root-command-plus-subcommands shape (a package
// main thin on logic, subcommands registered via init()), though
// without bd's daemon/RPC split since latticed is always a single
// in-process server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "latticed",
	Short: "Lattice embeddable document database server and admin CLI",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to lattice.yaml (optional; defaults apply if omitted)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "latticed:", err)
		os.Exit(1)
	}
}
