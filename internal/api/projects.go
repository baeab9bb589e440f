// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/netlabio/netlabd/internal/archive"
	"github.com/netlabio/netlabd/internal/controller"
	xlog "github.com/netlabio/netlabd/internal/log"
)

// project resolves the {project_id} path parameter. A nil return means
// the error response was already written.
func (s *Server) project(w http.ResponseWriter, r *http.Request) *controller.Project {
	p, err := s.controller.GetProject(chi.URLParam(r, "project_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return nil
	}
	return p
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var spec controller.ProjectSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	p, err := s.controller.CreateProject(r.Context(), spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p.Render())
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects := s.controller.Projects()
	out := make([]controller.ProjectResource, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.Render())
	}
	respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	respondJSON(w, r, http.StatusOK, p.Render())
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	var spec controller.ProjectSpec
	if !decodeJSON(w, r, &spec) {
		return
	}
	res, err := p.Update(spec)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.DeleteProject(r.Context(), chi.URLParam(r, "project_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleProjectOpen(w http.ResponseWriter, r *http.Request) {
	p, err := s.controller.OpenProject(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p.Render())
}

func (s *Server) handleProjectClose(w http.ResponseWriter, r *http.Request) {
	if _, err := s.controller.CloseProject(r.Context(), chi.URLParam(r, "project_id")); err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleProjectDuplicate(w http.ResponseWriter, r *http.Request) {
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
	clone, err := s.controller.DuplicateProject(r.Context(), chi.URLParam(r, "project_id"), body.Name)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, clone.Render())
}

func (s *Server) handleProjectExport(w http.ResponseWriter, r *http.Request) {
	p := s.project(w, r)
	if p == nil {
		return
	}
	res := p.Render()
	if res.Status != controller.StatusOpened {
		respondError(w, r, http.StatusForbidden, "the project is not opened")
		return
	}

	w.Header().Set("Content-Type", "application/gns3project")
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Name+`.gns3project"`)
	if err := archive.Export(r.Context(), p.Path, w); err != nil {
		// Headers are gone; all we can do is log.
		xlog.FromContext(r.Context()).Error().Err(err).
			Str("project_id", p.ID).
			Msg("project export failed")
	}
}

func (s *Server) handleProjectImport(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	name := r.URL.Query().Get("name")

	tmp, err := os.CreateTemp("", "netlabd-import-*.gns3project")
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, err = io.Copy(tmp, r.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "could not read archive: "+err.Error())
		return
	}

	p, err := s.controller.ImportProject(r.Context(), tmpPath, projectID, name)
	if err != nil {
		respondControllerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p.Render())
}
