// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netlabio/netlabd/internal/controller"
)

func (s *Server) handleApplianceList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, s.appliances.Appliances())
}

func (s *Server) handleApplianceGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.appliances.Get(chi.URLParam(r, "appliance_id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, a)
}

// handleApplianceAddNode provisions a node from an appliance descriptor
// at the given scene position.
func (s *Server) handleApplianceAddNode(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	a, err := s.appliances.Get(chi.URLParam(r, "appliance_id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, err.Error())
		return
	}

	var body struct {
		X       int    `json:"x"`
		Y       int    `json:"y"`
		Version string `json:"version,omitempty"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	nodeType, name, symbol, properties, err := a.NodeTemplate(body.Version)
	if err != nil {
		respondError(w, r, http.StatusConflict, err.Error())
		return
	}

	// Appliance nodes are numbered "FreeNAS-1", "FreeNAS-2" and so on.
	node, err := p.AddNode(r.Context(), controller.NodeSpec{
		Name:       name + "-{0}",
		NodeType:   nodeType,
		Symbol:     symbol,
		X:          &body.X,
		Y:          &body.Y,
		Properties: properties,
	})
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, node)
}
