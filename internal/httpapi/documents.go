package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/ingest"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/search"
)

// handleIngest implements PUT /v1.0/collections/{cid}/documents. The
// request body is the raw document JSON; name, labels, and tags ride
// along as query parameters since the document content itself is
// whatever shape the caller's schema describes, not a wrapper envelope.
//
//	?name=my-doc&label=urgent&label=reviewed&tag=priority:high&tag=owner:ops
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cid := r.PathValue("cid")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeEnvelope(w, start, http.StatusBadRequest, nil, err)
		return
	}
	if len(body) == 0 {
		s.writeEnvelope(w, start, http.StatusBadRequest, nil, errors.New("request body must be a JSON document"))
		return
	}

	q := r.URL.Query()
	tags := make(map[string]string)
	for _, kv := range q["tag"] {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			s.writeEnvelope(w, start, http.StatusBadRequest, nil, errors.New("tag parameter must be key:value"))
			return
		}
		tags[k] = v
	}

	doc, err := s.Ingestor.Ingest(r.Context(), ingest.Request{
		CollectionID: cid,
		Body:         body,
		Name:         q.Get("name"),
		Labels:       q["label"],
		Tags:         tags,
	})
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusCreated, doc, nil)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cid, did := r.PathValue("cid"), r.PathValue("did")

	doc, err := s.Repo.GetDocument(r.Context(), cid, did)
	if errors.Is(err, errs.ErrNotFound) {
		s.writeNotFoundAsNull(w, start)
		return
	}
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}

	includeContent := parseBoolParam(r, "includeContent", false)
	if !includeContent {
		s.writeEnvelope(w, start, http.StatusOK, doc, nil)
		return
	}

	// The includeContent=true quirk: bypass the envelope entirely and
	// return the stored document body as-is.
	body, err := s.Blobs.Get(r.Context(), cid, did)
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleHeadDocument(w http.ResponseWriter, r *http.Request) {
	cid, did := r.PathValue("cid"), r.PathValue("did")
	_, err := s.Repo.GetDocument(r.Context(), cid, did)
	if errors.Is(err, errs.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cid, did := r.PathValue("cid"), r.PathValue("did")

	if _, err := s.Repo.GetDocument(r.Context(), cid, did); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.writeEnvelope(w, start, http.StatusNotFound, nil, err)
			return
		}
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	if err := s.Ingestor.DeleteDocument(r.Context(), cid, did); err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, nil, nil)
}

// searchRequest is the POST .../documents/search body. Query (structured)
// or Sql (the narrow SQL-like dialect) must be set; when both are, Sql is
// used and Query is ignored.
type searchRequest struct {
	Query *model.SearchQuery `json:"query,omitempty"`
	Sql   string              `json:"sql,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cid := r.PathValue("cid")

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeEnvelope(w, start, http.StatusBadRequest, nil, errors.New("invalid JSON body"))
		return
	}

	var (
		result model.SearchResult
		err    error
	)
	switch {
	case req.Sql != "":
		result, err = search.ExecuteSQL(r.Context(), s.Adapter, s.Repo, s.Repo, s.Blobs, cid, req.Sql)
	case req.Query != nil:
		req.Query.CollectionID = cid
		result, err = search.Execute(r.Context(), s.Adapter, s.Repo, s.Repo, s.Blobs, *req.Query)
	default:
		err = errors.New("request must set either query or sql")
	}
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, result, nil)
}

func (s *Server) handleEnumerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	var eq model.EnumerationQuery
	if cid := q.Get("collectionId"); cid != "" {
		eq.CollectionID = &cid
	}
	if v := q.Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			eq.Skip = &n
		}
	}
	if v := q.Get("maxResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			eq.MaxResults = &n
		}
	}
	eq.IncludeContent = parseBoolParam(r, "includeContent", false)

	result, err := runEnumerate(r.Context(), s.Adapter, s.Repo, s.Blobs, eq)
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, result, nil)
}
