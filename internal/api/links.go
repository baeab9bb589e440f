// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/controller"
)

func (s *Server) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.LinkSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	res, _, err := p.PutLink(uuid.NewString(), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, res)
}

func (s *Server) handleLinkList(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	respondJSON(w, r, http.StatusOK, p.Links())
}

func (s *Server) handleLinkGet(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	res, err := p.GetLink(chi.URLParam(r, "link_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

// handleLinkPut stores the link under the id in the URL. Both creation
// and replacement answer 201 with the stored resource, echoing the input
// plus the server-assigned fields.
func (s *Server) handleLinkPut(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.LinkSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	res, _, err := p.PutLink(chi.URLParam(r, "link_id"), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, res)
}

func (s *Server) handleLinkDelete(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := p.DeleteLink(chi.URLParam(r, "link_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}
