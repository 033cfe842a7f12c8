package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/sctid/internal/sctid"
)

type generateRequest struct {
	Namespace string `json:"namespace"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	cat, err := sctid.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CATEGORY")
		return
	}
	if req.Quantity <= 0 || req.Quantity > s.cfg.MaxQuantity {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("quantity must be between 1 and %d", s.cfg.MaxQuantity), "VALIDATION_ERROR")
		return
	}

	ids, err := s.svc.Generate(r.Context(), req.Namespace, cat, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

// decodeIDs reads an {ids: [...]} body, writing the error response itself.
func decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return nil, false
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required", "VALIDATION_ERROR")
		return nil, false
	}
	return req.IDs, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	registered, err := s.svc.Register(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if registered == nil {
		registered = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": registered})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	recs, err := s.svc.Publish(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRecords(w, recs)
}

func (s *Server) handleDeprecate(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	recs, err := s.svc.Deprecate(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRecords(w, recs)
}

func writeRecords(w http.ResponseWriter, recs []sctid.Record) {
	if recs == nil {
		recs = []sctid.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	recs, err := s.svc.GetSctIDs(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleGetID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recs, err := s.svc.GetSctIDs(r.Context(), []string{id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs[id])
}
