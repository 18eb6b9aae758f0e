package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/collection"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/ingest"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	adapter, err := sqlitedialect.Open(ctx, filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	repo, err := metadata.New(ctx, adapter)
	require.NoError(t, err)

	blobs, err := blobstore.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	engine := index.New(adapter, repo, blobs)
	orch := ingest.New(adapter, repo, engine, blobs)
	lifecycle := collection.New(repo, engine, blobs, orch)

	return &Server{
		Adapter:     adapter,
		Repo:        repo,
		Blobs:       blobs,
		IndexEngine: engine,
		Ingestor:    orch,
		Lifecycle:   lifecycle,
	}
}

func doRequest(t *testing.T, mux http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	var env Envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	rr, env := doRequest(t, mux, http.MethodGet, "/v1.0/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
}

func TestCreateAndGetCollection(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	createBody, err := json.Marshal(createCollectionRequest{
		Name:            "widgets",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingAll,
	})
	require.NoError(t, err)

	rr, env := doRequest(t, mux, http.MethodPut, "/v1.0/collections", createBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.True(t, env.Success)

	dataBytes, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var created model.Collection
	require.NoError(t, json.Unmarshal(dataBytes, &created))
	require.NotEmpty(t, created.ID)

	rr, env = doRequest(t, mux, http.MethodGet, "/v1.0/collections/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)

	req := httptest.NewRequest(http.MethodHead, "/v1.0/collections/"+created.ID, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestGetMissingCollectionReturnsNullData(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	rr, env := doRequest(t, mux, http.MethodGet, "/v1.0/collections/coll_doesnotexist", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
	require.Nil(t, env.Data)

	req := httptest.NewRequest(http.MethodHead, "/v1.0/collections/coll_doesnotexist", nil)
	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, req)
	require.Equal(t, http.StatusNotFound, rr2.Code)
}

func TestIngestAndRetrieveDocumentWithContent(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	createBody, err := json.Marshal(createCollectionRequest{
		Name:            "events",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingAll,
	})
	require.NoError(t, err)
	rr, env := doRequest(t, mux, http.MethodPut, "/v1.0/collections", createBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	dataBytes, _ := json.Marshal(env.Data)
	var coll model.Collection
	require.NoError(t, json.Unmarshal(dataBytes, &coll))

	rr, env = doRequest(t, mux, http.MethodPut,
		"/v1.0/collections/"+coll.ID+"/documents?name=first&label=important&tag=team:core",
		[]byte(`{"kind":"click","value":3}`))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.True(t, env.Success)
	dataBytes, _ = json.Marshal(env.Data)
	var doc model.Document
	require.NoError(t, json.Unmarshal(dataBytes, &doc))
	require.NotEmpty(t, doc.ID)
	require.Equal(t, []string{"important"}, doc.Labels)

	rr, env = doRequest(t, mux, http.MethodGet,
		"/v1.0/collections/"+coll.ID+"/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)

	rr, _ = doRequest(t, mux, http.MethodGet,
		"/v1.0/collections/"+coll.ID+"/documents/"+doc.ID+"?includeContent=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"kind":"click","value":3}`, rr.Body.String())

	rr, env = doRequest(t, mux, http.MethodDelete,
		"/v1.0/collections/"+coll.ID+"/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)

	rr, env = doRequest(t, mux, http.MethodGet,
		"/v1.0/collections/"+coll.ID+"/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, env.Data)
}

func TestIngestMalformedJSONReturns400(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	createBody, _ := json.Marshal(createCollectionRequest{Name: "bad-json", IndexingMode: model.IndexingNone})
	rr, env := doRequest(t, mux, http.MethodPut, "/v1.0/collections", createBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	dataBytes, _ := json.Marshal(env.Data)
	var coll model.Collection
	require.NoError(t, json.Unmarshal(dataBytes, &coll))

	rr, env = doRequest(t, mux, http.MethodPut,
		"/v1.0/collections/"+coll.ID+"/documents",
		[]byte(`{"kind":`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, env.Success)
}

func TestSearchBySqlDialect(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	createBody, _ := json.Marshal(createCollectionRequest{
		Name:            "metrics",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingAll,
	})
	rr, env := doRequest(t, mux, http.MethodPut, "/v1.0/collections", createBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	dataBytes, _ := json.Marshal(env.Data)
	var coll model.Collection
	require.NoError(t, json.Unmarshal(dataBytes, &coll))

	_, env = doRequest(t, mux, http.MethodPut,
		"/v1.0/collections/"+coll.ID+"/documents",
		[]byte(`{"status":"active"}`))
	require.True(t, env.Success)

	searchBody, _ := json.Marshal(searchRequest{Sql: `SELECT * FROM documents WHERE status = 'active'`})
	rr, env = doRequest(t, mux, http.MethodPost, "/v1.0/collections/"+coll.ID+"/documents/search", searchBody)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
}

func TestDeleteCollectionCascadesDocuments(t *testing.T) {
	s := newTestServer(t)
	mux := s.Mux()

	createBody, _ := json.Marshal(createCollectionRequest{Name: "temp", IndexingMode: model.IndexingNone})
	rr, env := doRequest(t, mux, http.MethodPut, "/v1.0/collections", createBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	dataBytes, _ := json.Marshal(env.Data)
	var coll model.Collection
	require.NoError(t, json.Unmarshal(dataBytes, &coll))

	_, env = doRequest(t, mux, http.MethodPut, "/v1.0/collections/"+coll.ID+"/documents", []byte(`{"a":1}`))
	require.True(t, env.Success)

	rr, env = doRequest(t, mux, http.MethodDelete, "/v1.0/collections/"+coll.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)

	rr, env = doRequest(t, mux, http.MethodDelete, "/v1.0/collections/"+coll.ID, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.False(t, env.Success)
}
