package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/collection"
	"github.com/latticedb/lattice/internal/httpapi"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/ingest"
	"github.com/latticedb/lattice/internal/metadata"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Lattice REST server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "latticed: ", log.LstdFlags)

	adapter, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer adapter.Close()

	repo, err := metadata.New(ctx, adapter)
	if err != nil {
		return err
	}

	blobs, err := blobstore.NewFilesystemStore(cfg.Blobstore.Root)
	if err != nil {
		return err
	}

	engine := index.New(adapter, repo, blobs)
	orch := ingest.New(adapter, repo, engine, blobs)
	lifecycle := collection.New(repo, engine, blobs, orch)

	server := &httpapi.Server{
		Adapter:     adapter,
		Repo:        repo,
		Blobs:       blobs,
		IndexEngine: engine,
		Ingestor:    orch,
		Lifecycle:   lifecycle,
		Logger:      logger,
	}

	logger.Printf("listening on %s (backend=%s)", cfg.Server.Address, cfg.Backend.Kind)
	return http.ListenAndServe(cfg.Server.Address, server.Mux())
}
