// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/topology"
)

// Drawing is a free-form annotation on the project scene. The SVG field
// holds either inline SVG markup or the filename of an image in the
// project's pictures directory.
type Drawing struct {
	DrawingID string `json:"drawing_id"`
	ProjectID string `json:"project_id"`
	SVG       string `json:"svg"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Rotation  int    `json:"rotation"`
	Locked    bool   `json:"locked"`
}

// DrawingSpec carries caller-provided drawing settings.
type DrawingSpec struct {
	DrawingID string `json:"drawing_id,omitempty"`
	SVG       string `json:"svg,omitempty"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Rotation  int    `json:"rotation"`
	Locked    bool   `json:"locked"`
}

// resourceFilename returns the referenced image filename, or "" for
// inline SVG markup.
func (d *Drawing) resourceFilename() string {
	if strings.HasPrefix(strings.TrimSpace(d.SVG), "<") {
		return ""
	}
	return d.SVG
}

func (d *Drawing) toTopology() topology.Drawing {
	return topology.Drawing{
		DrawingID: d.DrawingID,
		SVG:       d.SVG,
		X:         d.X,
		Y:         d.Y,
		Z:         d.Z,
		Rotation:  d.Rotation,
		Locked:    d.Locked,
	}
}

// AddDrawing creates a drawing, or returns the existing one for a known
// id.
func (p *Project) AddDrawing(spec DrawingSpec) (*Drawing, error) {
	p.mu.Lock()
	if err := p.openRequired(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if spec.DrawingID != "" {
		if existing, ok := p.drawings[spec.DrawingID]; ok {
			cp := *existing
			p.mu.Unlock()
			return &cp, nil
		}
	}
	drawing := p.addDrawingLocked(spec)
	err := p.dump()
	cp := *drawing
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "drawing.created", &cp)
	return &cp, nil
}

func (p *Project) addDrawingLocked(spec DrawingSpec) *Drawing {
	id := spec.DrawingID
	if id == "" {
		id = uuid.NewString()
	}
	drawing := &Drawing{
		DrawingID: id,
		ProjectID: p.ID,
		SVG:       spec.SVG,
		X:         spec.X,
		Y:         spec.Y,
		Z:         spec.Z,
		Rotation:  spec.Rotation,
		Locked:    spec.Locked,
	}
	p.drawings[id] = drawing
	return drawing
}

// GetDrawing returns a copy of the drawing or ErrNotFound.
func (p *Project) GetDrawing(drawingID string) (*Drawing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	drawing, err := p.getDrawingLocked(drawingID)
	if err != nil {
		return nil, err
	}
	cp := *drawing
	return &cp, nil
}

func (p *Project) getDrawingLocked(drawingID string) (*Drawing, error) {
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	drawing, ok := p.drawings[drawingID]
	if !ok {
		return nil, fmt.Errorf("%w: drawing ID %s doesn't exist", ErrNotFound, drawingID)
	}
	return drawing, nil
}

// Drawings returns copies of all drawings ordered by id.
func (p *Project) Drawings() []*Drawing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Drawing, 0, len(p.drawings))
	for _, d := range sortedValues(p.drawings) {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// UpdateDrawing applies caller-provided settings to an existing drawing.
func (p *Project) UpdateDrawing(drawingID string, spec DrawingSpec) (*Drawing, error) {
	p.mu.Lock()
	drawing, err := p.getDrawingLocked(drawingID)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if spec.SVG != "" {
		drawing.SVG = spec.SVG
	}
	drawing.X = spec.X
	drawing.Y = spec.Y
	drawing.Z = spec.Z
	drawing.Rotation = spec.Rotation
	drawing.Locked = spec.Locked
	err = p.dump()
	cp := *drawing
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "drawing.updated", &cp)
	return &cp, nil
}

// DeleteDrawing removes the drawing.
func (p *Project) DeleteDrawing(drawingID string) error {
	p.mu.Lock()
	drawing, err := p.getDrawingLocked(drawingID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	delete(p.drawings, drawing.DrawingID)
	err = p.dump()
	cp := *drawing
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.controller.notifications.EmitProject(p.ID, "drawing.deleted", &cp)
	return nil
}
