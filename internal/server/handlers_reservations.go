package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/sctid/internal/reservation"
)

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	ranges, err := s.svc.ListReservations(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ranges == nil {
		ranges = []reservation.Range{}
	}
	writeJSON(w, http.StatusOK, ranges)
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error(), "PARSE_ERROR")
		return
	}
	rng, err := reservation.DecodeRange(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.svc.CreateReservation(r.Context(), rng); err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Debug("reservation created over http", "name", rng.Name, "principal", principalFromContext(r.Context()).Name)
	writeJSON(w, http.StatusCreated, rng)
}

func (s *Server) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.svc.DeleteReservation(r.Context(), name); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}
