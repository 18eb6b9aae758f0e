// Package httpapi is Lattice's REST front door: a thin, net/http.ServeMux
// based mapping of the fixed operation set in spec.md §6 onto HTTP, with
// one response envelope and one deviation from it (the includeContent
// raw-body quirk on document reads).
//
// Grounded directly on cmd/bd/web_server.go's buildWebMux/httpJSON shape:
// a stdlib mux, no framework, handlers that do their own query-param
// parsing and write a small envelope helper.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/collection"
	"github.com/latticedb/lattice/internal/enumerate"
	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/ingest"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Envelope is the fixed REST response shape every endpoint uses except
// the includeContent=true document-read quirk.
type Envelope struct {
	Success          bool        `json:"success"`
	StatusCode       int         `json:"statusCode"`
	ErrorMessage     string      `json:"errorMessage,omitempty"`
	Data             interface{} `json:"data,omitempty"`
	GUID             string      `json:"guid"`
	TimestampUtc     time.Time   `json:"timestampUtc"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
}

// Server holds every core component the REST front door calls into. It
// owns no state of its own beyond a logger.
type Server struct {
	Adapter     sqladapter.Adapter
	Repo        *metadata.Repository
	Blobs       blobstore.Store
	IndexEngine *index.Engine
	Ingestor    *ingest.Orchestrator
	Lifecycle   *collection.Lifecycle
	Logger      *log.Logger
}

// Mux builds the full routing table. Using Go's method-and-wildcard mux
// patterns keeps each route a single line; the teacher's own mux predates
// those patterns and does its own method/prefix checks inside each
// handler, which this package only falls back to where wildcard patterns
// would collide (none do here).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1.0/health", s.handleHealth)

	mux.HandleFunc("PUT /v1.0/collections", s.handleCreateCollection)
	mux.HandleFunc("GET /v1.0/collections/{id}", s.handleGetCollection)
	mux.HandleFunc("HEAD /v1.0/collections/{id}", s.handleHeadCollection)
	mux.HandleFunc("DELETE /v1.0/collections/{id}", s.handleDeleteCollection)

	mux.HandleFunc("GET /v1.0/collections/{id}/constraints", s.handleGetConstraints)
	mux.HandleFunc("PUT /v1.0/collections/{id}/constraints", s.handlePutConstraints)
	mux.HandleFunc("GET /v1.0/collections/{id}/indexing", s.handleGetIndexing)
	mux.HandleFunc("PUT /v1.0/collections/{id}/indexing", s.handlePutIndexing)
	mux.HandleFunc("POST /v1.0/collections/{id}/indexes/rebuild", s.handleRebuildIndexes)

	mux.HandleFunc("PUT /v1.0/collections/{cid}/documents", s.handleIngest)
	mux.HandleFunc("GET /v1.0/collections/{cid}/documents/{did}", s.handleGetDocument)
	mux.HandleFunc("HEAD /v1.0/collections/{cid}/documents/{did}", s.handleHeadDocument)
	mux.HandleFunc("DELETE /v1.0/collections/{cid}/documents/{did}", s.handleDeleteDocument)
	mux.HandleFunc("POST /v1.0/collections/{cid}/documents/search", s.handleSearch)

	mux.HandleFunc("GET /v1.0/schemas", s.handleListSchemas)
	mux.HandleFunc("GET /v1.0/schemas/{id}", s.handleGetSchema)
	mux.HandleFunc("GET /v1.0/schemas/{id}/elements", s.handleGetSchemaElements)

	mux.HandleFunc("GET /v1.0/tables", s.handleListTables)

	mux.HandleFunc("GET /v1.0/enumerate", s.handleEnumerate)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.Adapter.Ping(r.Context()); err != nil {
		s.writeEnvelope(w, start, http.StatusServiceUnavailable, nil, fmt.Errorf("backend unreachable: %w", err))
		return
	}
	if s.Blobs != nil && !s.Blobs.Writable() {
		s.writeEnvelope(w, start, http.StatusServiceUnavailable, nil, errors.New("blob store root is not writable"))
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

// writeEnvelope writes the fixed response envelope. A nil err means
// success; any non-nil err is mapped to a status code and surfaced as
// errorMessage, never as Go error internals leaking through.
func (s *Server) writeEnvelope(w http.ResponseWriter, start time.Time, status int, data interface{}, err error) {
	env := Envelope{
		Success:          err == nil,
		StatusCode:       status,
		GUID:             newGUID(),
		TimestampUtc:     time.Now().UTC(),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Data:             data,
	}
	if err != nil {
		env.ErrorMessage = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(env); encErr != nil && s.Logger != nil {
		s.Logger.Printf("httpapi: encode response: %v", encErr)
	}
}

// writeNotFoundAsNull implements the spec's GET-on-missing-entity quirk:
// success stays true, data is null, status is 200 — never a 404.
func (s *Server) writeNotFoundAsNull(w http.ResponseWriter, start time.Time) {
	s.writeEnvelope(w, start, http.StatusOK, nil, nil)
}

// statusFor maps a core sentinel error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnsupportedOperation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// newGUID renders 128 bits of crypto/rand as a standard 8-4-4-4-12 UUID
// string, the same entropy source internal/ids uses for entity IDs but
// formatted as a bare request identifier rather than a prefixed one.
func newGUID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000-0000-0000-0000-000000000000"
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// enumerationExecutor is the signature of internal/enumerate's Execute;
// handleEnumerate in documents.go calls through the runEnumerate
// variable of this type rather than calling enumerate.Execute directly.
type enumerationExecutor func(ctx context.Context, adapter sqladapter.Adapter, docs enumerate.DocumentRepository, blobs blobstore.Store, q model.EnumerationQuery) (model.SearchResult, error)

var runEnumerate enumerationExecutor = enumerate.Execute
