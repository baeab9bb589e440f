// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	snapshot, err := p.CreateSnapshot(r.Context(), body.Name)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, snapshot)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	snapshots, err := p.Snapshots()
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, snapshots)
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := p.RestoreSnapshot(r.Context(), chi.URLParam(r, "snapshot_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p.Render())
}

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := p.DeleteSnapshot(chi.URLParam(r, "snapshot_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}
