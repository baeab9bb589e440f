// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/archive"
	xlog "github.com/netlabio/netlabd/internal/log"
	"github.com/netlabio/netlabd/internal/notification"
	"github.com/netlabio/netlabd/internal/topology"
)

// Options configures a Controller.
type Options struct {
	ProjectsDir   string
	Version       string
	Notifications *notification.Manager
	Compute       Compute
}

// Controller owns every project known to the daemon.
type Controller struct {
	mu            sync.RWMutex
	projects      map[string]*Project
	projectsDir   string
	version       string
	notifications *notification.Manager
	compute       Compute
}

// New creates a Controller. Projects already on disk are picked up by
// Load.
func New(opts Options) (*Controller, error) {
	if opts.ProjectsDir == "" {
		return nil, fmt.Errorf("projects directory is required")
	}
	if err := os.MkdirAll(opts.ProjectsDir, 0o750); err != nil {
		return nil, fmt.Errorf("could not create projects directory: %w", err)
	}
	compute := opts.Compute
	if compute == nil {
		compute = NewLocalCompute()
	}
	notifications := opts.Notifications
	if notifications == nil {
		notifications = notification.NewManager(128)
	}
	return &Controller{
		projects:      make(map[string]*Project),
		projectsDir:   opts.ProjectsDir,
		version:       opts.Version,
		notifications: notifications,
		compute:       compute,
	}, nil
}

// Notifications returns the event fan-out used by this controller.
func (c *Controller) Notifications() *notification.Manager {
	return c.notifications
}

// Load scans the projects directory and registers every project found.
// Projects are registered closed; those with auto_open set are opened.
func (c *Controller) Load(ctx context.Context) error {
	entries, err := os.ReadDir(c.projectsDir)
	if err != nil {
		return err
	}
	logger := xlog.WithComponent("controller")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.projectsDir, e.Name())
		filename := findTopologyFile(dir)
		if filename == "" {
			continue
		}
		f, err := topology.Load(filepath.Join(dir, filename))
		if err != nil {
			logger.Warn().Err(err).Str("path", dir).Msg("skipping unreadable project")
			continue
		}
		projectID := f.ProjectID
		if projectID == "" {
			projectID = e.Name()
		}
		p, err := newProject(c, ProjectSpec{
			Name:      f.Name,
			ProjectID: projectID,
			Path:      dir,
		}, StatusClosed)
		if err != nil {
			logger.Warn().Err(err).Str("path", dir).Msg("skipping project")
			continue
		}
		p.Filename = filename
		p.AutoOpen = f.AutoOpen
		c.register(p)

		if f.AutoOpen {
			if err := p.Open(ctx); err != nil {
				logger.Warn().Err(err).
					Str("project_id", p.ID).
					Msg("auto open failed")
			} else {
				projectsOpen.Inc()
			}
		}
		logger.Info().
			Str("project_id", p.ID).
			Str("name", p.Name).
			Msg("registered project")
	}
	return nil
}

func findTopologyFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".gns3") {
			return e.Name()
		}
	}
	return ""
}

func (c *Controller) register(p *Project) {
	c.mu.Lock()
	c.projects[p.ID] = p
	projectsKnown.Set(float64(len(c.projects)))
	c.mu.Unlock()
}

// CreateProject creates and opens a new project.
func (c *Controller) CreateProject(ctx context.Context, spec ProjectSpec) (*Project, error) {
	if spec.ProjectID != "" {
		c.mu.RLock()
		_, exists := c.projects[spec.ProjectID]
		c.mu.RUnlock()
		if exists {
			return nil, fmt.Errorf("%w: project %s already exists", ErrConflict, spec.ProjectID)
		}
	}
	p, err := newProject(c, spec, StatusOpened)
	if err != nil {
		return nil, err
	}
	c.register(p)
	projectsOpen.Inc()
	c.notifications.EmitProject(p.ID, "project.created", p.Render())
	return p, nil
}

// GetProject returns the project or ErrNotFound.
func (c *Controller) GetProject(projectID string) (*Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project ID %s doesn't exist", ErrNotFound, projectID)
	}
	return p, nil
}

// Projects returns all projects.
func (c *Controller) Projects() []*Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Project, 0, len(c.projects))
	for _, p := range sortedValues(c.projects) {
		out = append(out, p)
	}
	return out
}

// OpenProject opens a registered project.
func (c *Controller) OpenProject(ctx context.Context, projectID string) (*Project, error) {
	p, err := c.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	wasClosed := p.Render().Status == StatusClosed
	if err := p.Open(ctx); err != nil {
		return nil, err
	}
	if wasClosed {
		projectsOpen.Inc()
	}
	return p, nil
}

// CloseProject closes a registered project.
func (c *Controller) CloseProject(ctx context.Context, projectID string) (*Project, error) {
	p, err := c.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if p.Render().Status == StatusOpened {
		projectsOpen.Dec()
	}
	if err := p.Close(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject deletes a project and its directory.
func (c *Controller) DeleteProject(ctx context.Context, projectID string) error {
	p, err := c.GetProject(projectID)
	if err != nil {
		return err
	}
	if err := p.delete(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.projects, projectID)
	projectsKnown.Set(float64(len(c.projects)))
	c.mu.Unlock()
	c.notifications.EmitProject(projectID, "project.deleted", p.Render())
	return nil
}

// DuplicateProject copies a project under a new id. It is implemented on
// top of export and import so there is only one serialization path to
// maintain.
func (c *Controller) DuplicateProject(ctx context.Context, projectID, name string) (*Project, error) {
	p, err := c.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	previousStatus := p.Render().Status
	if previousStatus == StatusClosed {
		if err := p.Open(ctx); err != nil {
			return nil, err
		}
	}

	tmp, err := os.MkdirTemp("", "netlabd-duplicate-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	archivePath := filepath.Join(tmp, "project.gns3project")
	if err := archive.ExportToFile(ctx, p.Path, archivePath); err != nil {
		return nil, fmt.Errorf("%w: can not duplicate project: %v", ErrConflict, err)
	}

	clone, err := c.importArchive(ctx, archivePath, uuid.NewString(), name)
	if err != nil {
		return nil, fmt.Errorf("%w: can not duplicate project: %v", ErrConflict, err)
	}

	if previousStatus == StatusClosed {
		if err := p.Close(ctx); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// ImportProject registers a project from an uploaded .gns3project
// archive.
func (c *Controller) ImportProject(ctx context.Context, archivePath, projectID, name string) (*Project, error) {
	if projectID == "" {
		projectID = uuid.NewString()
	} else if _, err := uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid UUID", ErrInvalid, projectID)
	}
	c.mu.RLock()
	_, exists := c.projects[projectID]
	c.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: project %s already exists", ErrConflict, projectID)
	}
	return c.importArchive(ctx, archivePath, projectID, name)
}

func (c *Controller) importArchive(ctx context.Context, archivePath, projectID, name string) (*Project, error) {
	destDir := filepath.Join(c.projectsDir, projectID)
	if _, err := os.Stat(destDir); err == nil {
		return nil, fmt.Errorf("%w: the path %s already exists", ErrConflict, destDir)
	}

	topologyName, err := archive.ImportFile(ctx, archivePath, destDir)
	if err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}

	// Rewrite identity: the archive carries the source project's id and
	// name.
	docPath := filepath.Join(destDir, topologyName)
	f, err := topology.Load(docPath)
	if err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}
	f.ProjectID = projectID
	if name != "" {
		f.Name = name
	}
	if err := validateFileName("project", f.Name); err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}
	newFilename := f.Name + ".gns3"
	if newFilename != topologyName {
		if err := os.Remove(docPath); err != nil {
			_ = os.RemoveAll(destDir)
			return nil, err
		}
		docPath = filepath.Join(destDir, newFilename)
		topologyName = newFilename
	}
	if err := topology.Save(docPath, f); err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}

	p, err := newProject(c, ProjectSpec{
		Name:      f.Name,
		ProjectID: projectID,
		Path:      destDir,
	}, StatusClosed)
	if err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}
	p.Filename = topologyName
	c.register(p)
	c.notifications.EmitProject(p.ID, "project.created", p.Render())
	return p, nil
}

// CloseAll closes every opened project. Used during shutdown.
func (c *Controller) CloseAll(ctx context.Context) error {
	var firstErr error
	for _, p := range c.Projects() {
		if p.Render().Status != StatusOpened {
			continue
		}
		if _, err := c.CloseProject(ctx, p.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
