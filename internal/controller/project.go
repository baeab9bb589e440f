// SPDX-License-Identifier: MIT

// Package controller implements the project, node and link management core
// of netlabd. A Controller owns projects; each project guards its own
// entity graph and persists every mutation to its .gns3 document.
package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	xlog "github.com/netlabio/netlabd/internal/log"
	"github.com/netlabio/netlabd/internal/topology"
)

// Project status values.
const (
	StatusOpened = "opened"
	StatusClosed = "closed"
)

// allConcurrency bounds concurrent node lifecycle operations in the
// project-wide start/stop/suspend calls.
const allConcurrency = 3

// Project is a lab project: a directory on disk holding the .gns3
// topology document plus project files, and the live entity graph while
// the project is open.
type Project struct {
	mu         sync.Mutex
	controller *Controller

	ID       string
	Name     string
	Path     string
	Filename string
	Status   string

	AutoStart bool
	AutoClose bool
	AutoOpen  bool

	SceneHeight         int
	SceneWidth          int
	Zoom                int
	ShowLayers          bool
	SnapToGrid          bool
	ShowGrid            bool
	ShowInterfaceLabels bool

	loading bool
	loaded  chan struct{}

	nodes          map[string]*Node
	links          map[string]*Link
	drawings       map[string]*Drawing
	snapshots      map[string]*Snapshot
	allocatedNames map[string]struct{}
}

// ProjectResource is the wire representation of a project.
type ProjectResource struct {
	Name                string `json:"name"`
	ProjectID           string `json:"project_id"`
	Path                string `json:"path"`
	Filename            string `json:"filename"`
	Status              string `json:"status"`
	AutoStart           bool   `json:"auto_start"`
	AutoClose           bool   `json:"auto_close"`
	AutoOpen            bool   `json:"auto_open"`
	SceneHeight         int    `json:"scene_height"`
	SceneWidth          int    `json:"scene_width"`
	Zoom                int    `json:"zoom"`
	ShowLayers          bool   `json:"show_layers"`
	SnapToGrid          bool   `json:"snap_to_grid"`
	ShowGrid            bool   `json:"show_grid"`
	ShowInterfaceLabels bool   `json:"show_interface_labels"`
}

// ProjectSpec carries the caller-provided project settings.
type ProjectSpec struct {
	Name      string `json:"name"`
	ProjectID string `json:"project_id,omitempty"`
	Path      string `json:"path,omitempty"`

	AutoStart *bool `json:"auto_start,omitempty"`
	AutoClose *bool `json:"auto_close,omitempty"`
	AutoOpen  *bool `json:"auto_open,omitempty"`

	SceneHeight         *int  `json:"scene_height,omitempty"`
	SceneWidth          *int  `json:"scene_width,omitempty"`
	Zoom                *int  `json:"zoom,omitempty"`
	ShowLayers          *bool `json:"show_layers,omitempty"`
	SnapToGrid          *bool `json:"snap_to_grid,omitempty"`
	ShowGrid            *bool `json:"show_grid,omitempty"`
	ShowInterfaceLabels *bool `json:"show_interface_labels,omitempty"`
}

func newProject(c *Controller, spec ProjectSpec, status string) (*Project, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	if err := validateFileName("project", spec.Name); err != nil {
		return nil, err
	}

	id := spec.ProjectID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid UUID", ErrInvalid, spec.ProjectID)
	}

	path := spec.Path
	if path == "" {
		path = filepath.Join(c.projectsDir, id)
	} else if spec.ProjectID == "" {
		// Explicit path without an explicit id must not clobber an existing
		// project directory.
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: the path %s already exists", ErrConflict, path)
		}
	}

	p := &Project{
		controller:  c,
		ID:          id,
		Name:        spec.Name,
		Filename:    spec.Name + ".gns3",
		Status:      status,
		AutoClose:   true,
		SceneHeight: 1000,
		SceneWidth:  2000,
		Zoom:        100,
	}
	p.applySpec(spec)

	if err := p.setPath(path); err != nil {
		return nil, err
	}
	p.reset()

	// A fresh project gets an empty topology document right away.
	if _, err := os.Stat(p.topologyFile()); os.IsNotExist(err) {
		if err := p.dump(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Project) applySpec(spec ProjectSpec) {
	if spec.AutoStart != nil {
		p.AutoStart = *spec.AutoStart
	}
	if spec.AutoClose != nil {
		p.AutoClose = *spec.AutoClose
	}
	if spec.AutoOpen != nil {
		p.AutoOpen = *spec.AutoOpen
	}
	if spec.SceneHeight != nil {
		p.SceneHeight = *spec.SceneHeight
	}
	if spec.SceneWidth != nil {
		p.SceneWidth = *spec.SceneWidth
	}
	if spec.Zoom != nil {
		p.Zoom = *spec.Zoom
	}
	if spec.ShowLayers != nil {
		p.ShowLayers = *spec.ShowLayers
	}
	if spec.SnapToGrid != nil {
		p.SnapToGrid = *spec.SnapToGrid
	}
	if spec.ShowGrid != nil {
		p.ShowGrid = *spec.ShowGrid
	}
	if spec.ShowInterfaceLabels != nil {
		p.ShowInterfaceLabels = *spec.ShowInterfaceLabels
	}
}

func (p *Project) setPath(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("could not create project directory: %w", err)
	}
	// Dynamips cannot handle quotes in its working directory.
	for _, r := range path {
		if r == '"' {
			return fmt.Errorf("%w: project directory path must not contain quotes", ErrInvalid)
		}
	}
	p.Path = path
	return nil
}

// reset clears the live entity graph. Called on open and close.
func (p *Project) reset() {
	p.nodes = make(map[string]*Node)
	p.links = make(map[string]*Link)
	p.drawings = make(map[string]*Drawing)
	p.snapshots = make(map[string]*Snapshot)
	p.allocatedNames = make(map[string]struct{})
	p.scanSnapshots()
}

func (p *Project) topologyFile() string {
	return filepath.Join(p.Path, p.Filename)
}

// CapturesDirectory returns (and creates) the capture file location.
func (p *Project) CapturesDirectory() (string, error) {
	path := filepath.Join(p.Path, "project-files", "captures")
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", err
	}
	return path, nil
}

// PicturesDirectory returns (and creates) the drawing image location.
func (p *Project) PicturesDirectory() (string, error) {
	path := filepath.Join(p.Path, "project-files", "images")
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Project) openRequired() error {
	if p.Status == StatusClosed {
		return ErrProjectClosed
	}
	return nil
}

// Render returns the wire representation of the project.
func (p *Project) Render() ProjectResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked()
}

func (p *Project) renderLocked() ProjectResource {
	return ProjectResource{
		Name:                p.Name,
		ProjectID:           p.ID,
		Path:                p.Path,
		Filename:            p.Filename,
		Status:              p.Status,
		AutoStart:           p.AutoStart,
		AutoClose:           p.AutoClose,
		AutoOpen:            p.AutoOpen,
		SceneHeight:         p.SceneHeight,
		SceneWidth:          p.SceneWidth,
		Zoom:                p.Zoom,
		ShowLayers:          p.ShowLayers,
		SnapToGrid:          p.SnapToGrid,
		ShowGrid:            p.ShowGrid,
		ShowInterfaceLabels: p.ShowInterfaceLabels,
	}
}

// Update applies caller-provided settings. A notification is emitted only
// when something actually changed.
func (p *Project) Update(spec ProjectSpec) (ProjectResource, error) {
	if spec.Name != "" {
		if err := validateFileName("project", spec.Name); err != nil {
			return ProjectResource{}, err
		}
	}
	p.mu.Lock()
	before := p.renderLocked()
	if spec.Name != "" {
		p.Name = spec.Name
	}
	p.applySpec(spec)
	after := p.renderLocked()
	changed := before != after
	var err error
	if changed {
		err = p.dump()
	}
	p.mu.Unlock()

	if err != nil {
		return after, err
	}
	if changed {
		p.controller.notifications.EmitProject(p.ID, "project.updated", after)
	}
	return after, nil
}

// dump writes the .gns3 document. Callers hold p.mu.
func (p *Project) dump() error {
	f := &topology.File{
		Name:                p.Name,
		ProjectID:           p.ID,
		Revision:            topology.CurrentRevision,
		Type:                topology.FileType,
		Version:             p.controller.version,
		AutoStart:           p.AutoStart,
		AutoClose:           p.AutoClose,
		AutoOpen:            p.AutoOpen,
		SceneHeight:         p.SceneHeight,
		SceneWidth:          p.SceneWidth,
		Zoom:                p.Zoom,
		ShowLayers:          p.ShowLayers,
		SnapToGrid:          p.SnapToGrid,
		ShowGrid:            p.ShowGrid,
		ShowInterfaceLabels: p.ShowInterfaceLabels,
		Topology: topology.Topology{
			Computes: []topology.Compute{},
			Drawings: make([]topology.Drawing, 0, len(p.drawings)),
			Links:    make([]topology.Link, 0, len(p.links)),
			Nodes:    make([]topology.Node, 0, len(p.nodes)),
		},
	}
	for _, n := range sortedValues(p.nodes) {
		f.Topology.Nodes = append(f.Topology.Nodes, n.toTopology())
	}
	for _, l := range sortedValues(p.links) {
		f.Topology.Links = append(f.Topology.Links, l.toTopology())
	}
	for _, d := range sortedValues(p.drawings) {
		f.Topology.Drawings = append(f.Topology.Drawings, d.toTopology())
	}

	logger := xlog.WithComponent("controller")
	logger.Debug().Str("path", p.topologyFile()).Msg("writing topology")
	if err := topology.Save(p.topologyFile(), f); err != nil {
		return err
	}
	topologyDumps.Inc()
	return nil
}

// Open loads the topology document and populates the entity graph. On any
// error the previous document is restored from backup and the project
// stays closed.
func (p *Project) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked(ctx)
}

func (p *Project) openLocked(ctx context.Context) error {
	if p.Status == StatusOpened {
		return nil
	}

	p.reset()
	p.loading = true
	p.loaded = make(chan struct{})
	defer func() {
		p.loading = false
		close(p.loaded)
	}()
	p.Status = StatusOpened

	path := p.topologyFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		p.controller.notifications.EmitProject(p.ID, "project.opened", p.renderLocked())
		return nil
	}

	// Keep a backup so a failed load can roll the document back.
	logger := xlog.WithComponent("controller")
	backup := path + ".backup"
	if err := copyFile(path, backup); err != nil {
		logger.Warn().Err(err).Msg("could not write topology backup")
	}

	if err := p.loadTopology(ctx, path); err != nil {
		if _, statErr := os.Stat(backup); statErr == nil {
			if restoreErr := copyFile(backup, path); restoreErr != nil {
				logger.Warn().Err(restoreErr).Msg("could not restore topology backup")
			}
		}
		p.Status = StatusClosed
		return err
	}
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		logger.Debug().Err(err).Msg("could not remove topology backup")
	}

	p.controller.notifications.EmitProject(p.ID, "project.opened", p.renderLocked())

	if p.AutoStart {
		// Start in the background; a failing node must not block opening.
		go func() {
			if err := p.StartAll(context.Background()); err != nil {
				logger.Warn().Err(err).
					Str("project_id", p.ID).
					Msg("auto start failed")
			}
		}()
	}
	return nil
}

func (p *Project) loadTopology(ctx context.Context, path string) error {
	f, err := topology.Load(path)
	if err != nil {
		return err
	}

	p.Name = f.Name
	p.AutoStart = f.AutoStart
	p.AutoClose = f.AutoClose
	p.AutoOpen = f.AutoOpen
	p.SceneHeight = f.SceneHeight
	p.SceneWidth = f.SceneWidth
	p.Zoom = f.Zoom
	p.ShowLayers = f.ShowLayers
	p.SnapToGrid = f.SnapToGrid
	p.ShowGrid = f.ShowGrid
	p.ShowInterfaceLabels = f.ShowInterfaceLabels
	if f.Zoom == 0 {
		p.Zoom = 100
	}

	for _, tn := range f.Topology.Nodes {
		spec := NodeSpec{
			NodeID:      tn.NodeID,
			Name:        tn.Name,
			NodeType:    tn.NodeType,
			ComputeID:   tn.ComputeID,
			Console:     tn.Console,
			ConsoleType: tn.ConsoleType,
			X:           &tn.X,
			Y:           &tn.Y,
			Z:           &tn.Z,
			Symbol:      tn.Symbol,
			Label:       tn.Label,
			Properties:  tn.Properties,
		}
		if _, err := p.addNodeLocked(ctx, spec, false); err != nil {
			return err
		}
	}

	for _, tl := range f.Topology.Links {
		if tl.LinkID == "" {
			// Corrupted entry, skip the link.
			continue
		}
		link := p.addLinkLocked(tl.LinkID)
		if tl.Filters != nil {
			if err := topology.ValidateFilters(tl.Filters); err != nil {
				return fmt.Errorf("%w: link %s: %v", ErrInvalid, tl.LinkID, err)
			}
			link.Filters = tl.Filters.Clone()
		}
		link.Suspend = tl.Suspend
		for _, end := range tl.Nodes {
			node, err := p.getNodeLocked(end.NodeID)
			if err != nil {
				return err
			}
			port, err := node.GetPort(end.AdapterNumber, end.PortNumber)
			if err != nil {
				return err
			}
			if port.LinkID != "" {
				// The port is already attached to another link.
				continue
			}
			if err := link.addEndpoint(node, end.AdapterNumber, end.PortNumber, end.Label); err != nil {
				return err
			}
		}
		if len(link.Endpoints) != 2 {
			// A link needs two attached nodes; drop remnants of corrupted
			// documents.
			link.detach()
			delete(p.links, link.LinkID)
		}
	}

	for _, td := range f.Topology.Drawings {
		p.addDrawingLocked(DrawingSpec{
			DrawingID: td.DrawingID,
			SVG:       td.SVG,
			X:         td.X,
			Y:         td.Y,
			Z:         td.Z,
			Rotation:  td.Rotation,
			Locked:    td.Locked,
		})
	}

	return p.dump()
}

// WaitLoaded blocks until a concurrent open finished populating the graph.
func (p *Project) WaitLoaded(ctx context.Context) error {
	p.mu.Lock()
	loading := p.loading
	loaded := p.loaded
	p.mu.Unlock()
	if !loading || loaded == nil {
		return nil
	}
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops all nodes, removes unused drawing images and marks the
// project closed.
func (p *Project) Close(ctx context.Context) error {
	if err := p.StopAll(ctx); err != nil {
		logger := xlog.WithComponent("controller")
		logger.Warn().Err(err).
			Str("project_id", p.ID).
			Msg("stopping nodes during close failed")
	}
	p.mu.Lock()
	p.cleanPictures()
	p.Status = StatusClosed
	res := p.renderLocked()
	p.mu.Unlock()

	p.controller.notifications.EmitProject(p.ID, "project.closed", res)
	return nil
}

// cleanPictures deletes images no drawing references anymore. Callers hold
// p.mu.
func (p *Project) cleanPictures() {
	if _, err := os.Stat(p.Path); os.IsNotExist(err) {
		return
	}
	dir, err := p.PicturesDirectory()
	if err != nil {
		return
	}
	logger := xlog.WithComponent("controller")
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn().Err(err).Msg("could not scan pictures directory")
		return
	}
	used := make(map[string]struct{})
	for _, d := range p.drawings {
		if name := d.resourceFilename(); name != "" {
			used[name] = struct{}{}
		}
	}
	for _, e := range entries {
		if _, ok := used[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.Warn().Err(err).Msg("could not remove unused picture")
		}
	}
}

// Delete closes the project and removes its directory.
func (p *Project) delete(ctx context.Context) error {
	p.mu.Lock()
	closed := p.Status != StatusOpened
	p.mu.Unlock()
	if closed {
		// Open first so node cleanup runs; conflicts (missing images and
		// the like) are ignored when deleting.
		if err := p.Open(ctx); err != nil {
			logger := xlog.WithComponent("controller")
			logger.Warn().Err(err).
				Str("project_id", p.ID).
				Msg("conflict while deleting project")
		}
	}
	if err := p.Close(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(p.Path); err != nil {
		return fmt.Errorf("%w: cannot delete project directory %s: %v", ErrConflict, p.Path, err)
	}
	return nil
}

// IsRunning reports whether any node is started or suspended.
func (p *Project) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.nodes {
		if n.Status != NodeStopped && !n.isAlwaysRunning() {
			return true
		}
	}
	return false
}

// StartAll starts every node with bounded concurrency.
func (p *Project) StartAll(ctx context.Context) error {
	return p.forAllNodes(ctx, "start")
}

// StopAll stops every node with bounded concurrency.
func (p *Project) StopAll(ctx context.Context) error {
	return p.forAllNodes(ctx, "stop")
}

// SuspendAll suspends every started node with bounded concurrency.
func (p *Project) SuspendAll(ctx context.Context) error {
	return p.forAllNodes(ctx, "suspend")
}

func (p *Project) forAllNodes(ctx context.Context, op string) error {
	p.mu.Lock()
	nodes := make([]*Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		nodes = append(nodes, n)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(allConcurrency)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			var (
				status NodeStatus
				err    error
			)
			compute := p.controller.compute
			switch op {
			case "start":
				status, err = compute.StartNode(gctx, p.ID, n)
			case "stop":
				status, err = compute.StopNode(gctx, p.ID, n)
			case "suspend":
				if n.Status != NodeStarted {
					return nil
				}
				status, err = compute.SuspendNode(gctx, p.ID, n)
			}
			if err != nil {
				return err
			}
			n.Status = status
			return nil
		})
	}
	err := g.Wait()
	rendered := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		rendered = append(rendered, n.render())
	}
	p.mu.Unlock()

	for _, n := range rendered {
		p.controller.notifications.EmitProject(p.ID, "node.updated", n)
	}
	return err
}

// sortedValues returns map values ordered by key so dumps are stable.
func sortedValues[V any](m map[string]V) []V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]V, 0, len(m))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- project-confined paths
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst) // #nosec G304 -- project-confined paths
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
