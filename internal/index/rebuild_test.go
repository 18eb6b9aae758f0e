package index

import (
	"context"
	"testing"

	"github.com/latticedb/lattice/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Get(_ context.Context, _, documentID string) ([]byte, error) {
	return f.bodies[documentID], nil
}

func TestRebuildReindexesDocuments(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"doc_1": []byte(`{"status":"open","priority":1}`),
		"doc_2": []byte(`{"status":"closed","priority":2}`),
	}}

	opts := RebuildOptions{
		CollectionID: "col_1",
		IndexingMode: model.IndexingAll,
		Concurrency:  2,
	}

	var lastProgress model.IndexRebuildProgress
	opts.OnProgress = func(p model.IndexRebuildProgress) { lastProgress = p }

	result, err := engine.Rebuild(ctx, opts, []string{"doc_1", "doc_2"}, fetcher)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(2), result.DocumentsProcessed)
	require.Equal(t, int64(4), result.ValuesInserted)
	require.Equal(t, int64(2), lastProgress.TotalDocuments)
}

func TestRebuildRecordsPerDocumentErrors(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"doc_bad": []byte(`not json`),
	}}

	opts := RebuildOptions{CollectionID: "col_1", IndexingMode: model.IndexingAll}
	result, err := engine.Rebuild(ctx, opts, []string{"doc_bad"}, fetcher)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
}
