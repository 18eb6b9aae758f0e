package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/blobstore"
	lifecyclepkg "github.com/latticedb/lattice/internal/collection"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/ingest"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var (
	createEnforcementMode string
	createIndexingMode    string
	createEnableLocking   bool
)

var collectionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionCreate,
}

var collectionRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a collection and every document in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionRm,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

func init() {
	collectionCreateCmd.Flags().StringVar(&createEnforcementMode, "enforcement", string(model.EnforcementNone), "schema enforcement mode: none, strict, flexible, partial")
	collectionCreateCmd.Flags().StringVar(&createIndexingMode, "indexing", string(model.IndexingNone), "indexing mode: none, selective, all")
	collectionCreateCmd.Flags().BoolVar(&createEnableLocking, "enable-locking", false, "serialize ingest per collection (spec §5/§6)")

	collectionCmd.AddCommand(collectionCreateCmd, collectionRmCmd, collectionListCmd)
	rootCmd.AddCommand(collectionCmd)
}

// newLifecycle opens the configured backend and wires up the full
// collection.Lifecycle stack, the same components runServe wires, for
// one-shot CLI operations.
func newLifecycle(cmd *cobra.Command) (*lifecyclepkg.Lifecycle, *metadata.Repository, func(), error) {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	adapter, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, nil, nil, err
	}

	repo, err := metadata.New(ctx, adapter)
	if err != nil {
		adapter.Close()
		return nil, nil, nil, err
	}

	blobs, err := blobstore.NewFilesystemStore(cfg.Blobstore.Root)
	if err != nil {
		adapter.Close()
		return nil, nil, nil, err
	}

	engine := index.New(adapter, repo, blobs)
	orch := ingest.New(adapter, repo, engine, blobs)
	lifecycle := lifecyclepkg.New(repo, engine, blobs, orch)

	return lifecycle, repo, func() { adapter.Close() }, nil
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	lifecycle, _, closeFn, err := newLifecycle(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	c, err := lifecycle.Create(cmd.Context(), lifecyclepkg.CreateOptions{
		Name:                args[0],
		EnforcementMode:     model.SchemaEnforcementMode(createEnforcementMode),
		IndexingMode:        model.IndexingMode(createIndexingMode),
		EnableObjectLocking: createEnableLocking,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", passStyle.Render("created"), boldStyle.Render(c.Name), mutedStyle.Render(c.ID))
	return nil
}

func runCollectionRm(cmd *cobra.Command, args []string) error {
	lifecycle, _, closeFn, err := newLifecycle(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := lifecycle.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", failStyle.Render("deleted"), args[0])
	return nil
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	_, repo, closeFn, err := newLifecycle(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	collections, err := repo.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	for _, c := range collections {
		fmt.Printf("%s  %-30s  enforcement=%-10s indexing=%-10s\n",
			mutedStyle.Render(c.ID), c.Name, c.EnforcementMode, c.IndexingMode)
	}
	fmt.Println(accentStyle.Render(fmt.Sprintf("%d collection(s)", len(collections))))
	return nil
}
