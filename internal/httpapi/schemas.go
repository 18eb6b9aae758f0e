package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/latticedb/lattice/internal/errs"
)

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schemas, err := s.Repo.ListSchemas(r.Context())
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, schemas, nil)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	schema, err := s.Repo.GetSchema(r.Context(), id)
	if errors.Is(err, errs.ErrNotFound) {
		s.writeNotFoundAsNull(w, start)
		return
	}
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, schema, nil)
}

func (s *Server) handleGetSchemaElements(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	schema, err := s.Repo.GetSchema(r.Context(), id)
	if errors.Is(err, errs.ErrNotFound) {
		s.writeNotFoundAsNull(w, start)
		return
	}
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, schema.Elements, nil)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	mappings, err := s.Repo.ListIndexTableMappings(r.Context())
	if err != nil {
		s.writeEnvelope(w, start, statusFor(err), nil, err)
		return
	}
	s.writeEnvelope(w, start, http.StatusOK, mappings, nil)
}
