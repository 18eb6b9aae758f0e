package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/model"
)

var dropUnusedIndexes bool

var rebuildIndexesCmd = &cobra.Command{
	Use:   "rebuild-indexes <collection-id>",
	Short: "Rebuild every index table for a collection against its current configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runRebuildIndexes,
}

func init() {
	rebuildIndexesCmd.Flags().BoolVar(&dropUnusedIndexes, "drop-unused", false, "drop index tables no longer referenced by the collection's indexing configuration")
	rootCmd.AddCommand(rebuildIndexesCmd)
}

func runRebuildIndexes(cmd *cobra.Command, args []string) error {
	lifecycle, _, closeFn, err := newLifecycle(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	collectionID := args[0]

	onProgress := func(p model.IndexRebuildProgress) {
		fmt.Printf("\r%s %d/%d documents, %d values inserted",
			accentStyle.Render("rebuilding..."), p.DocumentsProcessed, p.TotalDocuments, p.ValuesInserted)
	}

	result, err := lifecycle.RebuildIndexes(cmd.Context(), collectionID, dropUnusedIndexes, onProgress)
	fmt.Println()
	if err != nil {
		return err
	}

	status := passStyle.Render("ok")
	if !result.Success {
		status = failStyle.Render("completed with errors")
	}
	fmt.Printf("%s: %d documents, %d values inserted, %d tables created, %d tables dropped (%dms)\n",
		status, result.DocumentsProcessed, result.ValuesInserted,
		len(result.IndexesCreated), len(result.IndexesDropped), result.DurationMs)
	for _, e := range result.Errors {
		fmt.Println(failStyle.Render("  - " + e))
	}
	return nil
}
