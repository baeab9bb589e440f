// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netlabio/netlabd/internal/controller"
)

func (s *Server) handleDrawingCreate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.DrawingSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	drawing, err := p.AddDrawing(spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, drawing)
}

func (s *Server) handleDrawingList(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	respondJSON(w, r, http.StatusOK, p.Drawings())
}

func (s *Server) handleDrawingGet(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	drawing, err := p.GetDrawing(chi.URLParam(r, "drawing_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, drawing)
}

func (s *Server) handleDrawingUpdate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.DrawingSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	drawing, err := p.UpdateDrawing(chi.URLParam(r, "drawing_id"), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, drawing)
}

func (s *Server) handleDrawingDelete(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := p.DeleteDrawing(chi.URLParam(r, "drawing_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}
