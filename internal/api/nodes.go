// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netlabio/netlabd/internal/controller"
)

func (s *Server) handleNodeCreate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.NodeSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	node, err := p.AddNode(r.Context(), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, node)
}

func (s *Server) handleNodeList(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	respondJSON(w, r, http.StatusOK, p.Nodes())
}

func (s *Server) handleNodeGet(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	node, err := p.GetNode(chi.URLParam(r, "node_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, node)
}

func (s *Server) handleNodeUpdate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.NodeSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	node, err := p.UpdateNode(r.Context(), chi.URLParam(r, "node_id"), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, node)
}

func (s *Server) handleNodeDelete(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := p.DeleteNode(r.Context(), chi.URLParam(r, "node_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleNodePorts(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	ports, err := p.NodePorts(chi.URLParam(r, "node_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, ports)
}

func (s *Server) nodeLifecycle(w http.ResponseWriter, r *http.Request,
	op func(p *controller.Project) (*controller.Node, error)) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	node, err := op(p)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, node)
}

func (s *Server) handleNodeStart(w http.ResponseWriter, r *http.Request) {
	s.nodeLifecycle(w, r, func(p *controller.Project) (*controller.Node, error) {
		return p.StartNode(r.Context(), chi.URLParam(r, "node_id"))
	})
}

func (s *Server) handleNodeStop(w http.ResponseWriter, r *http.Request) {
	s.nodeLifecycle(w, r, func(p *controller.Project) (*controller.Node, error) {
		return p.StopNode(r.Context(), chi.URLParam(r, "node_id"))
	})
}

func (s *Server) handleNodeSuspend(w http.ResponseWriter, r *http.Request) {
	s.nodeLifecycle(w, r, func(p *controller.Project) (*controller.Node, error) {
		return p.SuspendNode(r.Context(), chi.URLParam(r, "node_id"))
	})
}

func (s *Server) handleNodeDuplicate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var body struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	node, err := p.DuplicateNode(r.Context(), chi.URLParam(r, "node_id"), body.X, body.Y, body.Z)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, node)
}

func (s *Server) projectWide(w http.ResponseWriter, r *http.Request,
	op func(p *controller.Project) error) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	if err := op(p); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleNodesStartAll(w http.ResponseWriter, r *http.Request) {
	s.projectWide(w, r, func(p *controller.Project) error { return p.StartAll(r.Context()) })
}

func (s *Server) handleNodesStopAll(w http.ResponseWriter, r *http.Request) {
	s.projectWide(w, r, func(p *controller.Project) error { return p.StopAll(r.Context()) })
}

func (s *Server) handleNodesSuspendAll(w http.ResponseWriter, r *http.Request) {
	s.projectWide(w, r, func(p *controller.Project) error { return p.SuspendAll(r.Context()) })
}
