package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/metadata"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the metadata schema (CREATE TABLE IF NOT EXISTS) to the configured backend",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigrate just opens the configured backend: metadata.New applies the
// DDL as a side effect of construction, and that DDL is idempotent.
func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	adapter, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer adapter.Close()

	if _, err := metadata.New(ctx, adapter); err != nil {
		return err
	}
	fmt.Println(passStyle.Render("schema applied"))
	return nil
}
