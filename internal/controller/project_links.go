// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/topology"
)

// LinkSpec is the caller-provided payload of a link create or update.
type LinkSpec struct {
	Nodes   []topology.LinkNode `json:"nodes"`
	Filters topology.Filters    `json:"filters,omitempty"`
	Suspend *bool               `json:"suspend,omitempty"`
}

// AddLink creates an empty link, or returns the existing one for a known
// id.
func (p *Project) AddLink(linkID string) (*Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	if linkID != "" {
		if existing, ok := p.links[linkID]; ok {
			return existing, nil
		}
	}
	link := p.addLinkLocked(linkID)
	if err := p.dump(); err != nil {
		return nil, err
	}
	return link, nil
}

// addLinkLocked inserts a new link into the graph. Callers hold p.mu.
func (p *Project) addLinkLocked(linkID string) *Link {
	if linkID == "" {
		linkID = uuid.NewString()
	}
	link := &Link{LinkID: linkID, ProjectID: p.ID, Filters: topology.Filters{}}
	p.links[linkID] = link
	return link
}

// PutLink stores a link under the given id: endpoints are (re)attached,
// filters validated and replaced. The returned resource echoes the input
// and carries the server-assigned fields; created reports whether the link
// id was new.
func (p *Project) PutLink(linkID string, spec LinkSpec) (*LinkResource, bool, error) {
	p.mu.Lock()
	res, created, err := p.putLinkLocked(linkID, spec)
	p.mu.Unlock()

	if err != nil {
		return nil, false, err
	}
	action := "link.updated"
	if created {
		action = "link.created"
	}
	p.controller.notifications.EmitProject(p.ID, action, res)
	return res, created, nil
}

func (p *Project) putLinkLocked(linkID string, spec LinkSpec) (*LinkResource, bool, error) {
	if err := p.openRequired(); err != nil {
		return nil, false, err
	}
	if linkID == "" {
		return nil, false, fmt.Errorf("%w: link id is required", ErrInvalid)
	}
	if _, err := uuid.Parse(linkID); err != nil {
		return nil, false, fmt.Errorf("%w: %s is not a valid UUID", ErrInvalid, linkID)
	}
	if len(spec.Nodes) != 2 {
		return nil, false, fmt.Errorf("%w: a link requires exactly 2 nodes, got %d", ErrInvalid, len(spec.Nodes))
	}
	if spec.Filters != nil {
		if err := topology.ValidateFilters(spec.Filters); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	link, exists := p.links[linkID]
	var previous []Endpoint
	if exists {
		previous = link.Endpoints
		link.detach()
		link.Endpoints = nil
	} else {
		link = p.addLinkLocked(linkID)
	}

	restore := func() {
		link.detach()
		link.Endpoints = nil
		for _, end := range previous {
			// Re-attaching previously held ports cannot fail.
			_ = link.addEndpoint(end.Node, end.AdapterNumber, end.PortNumber, end.Label)
		}
		if !exists {
			delete(p.links, linkID)
		}
	}

	for _, end := range spec.Nodes {
		node, err := p.getNodeLocked(end.NodeID)
		if err != nil {
			restore()
			return nil, false, err
		}
		if err := link.addEndpoint(node, end.AdapterNumber, end.PortNumber, end.Label); err != nil {
			restore()
			return nil, false, err
		}
	}

	if spec.Filters != nil {
		link.Filters = spec.Filters.Clone()
	}
	if spec.Suspend != nil {
		link.Suspend = *spec.Suspend
	}

	if err := p.dump(); err != nil {
		return nil, false, err
	}
	return link.render(), !exists, nil
}

// UpdateLinkFilters replaces the filters of an existing link.
func (p *Project) UpdateLinkFilters(linkID string, filters topology.Filters) (*LinkResource, error) {
	p.mu.Lock()
	link, err := p.getLinkLocked(linkID)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if err := topology.ValidateFilters(filters); err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	link.Filters = filters.Clone()
	err = p.dump()
	res := link.render()
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "link.updated", res)
	return res, nil
}

// GetLink returns the link resource or ErrNotFound.
func (p *Project) GetLink(linkID string) (*LinkResource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	link, err := p.getLinkLocked(linkID)
	if err != nil {
		return nil, err
	}
	return link.render(), nil
}

func (p *Project) getLinkLocked(linkID string) (*Link, error) {
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	link, ok := p.links[linkID]
	if !ok {
		return nil, fmt.Errorf("%w: link ID %s doesn't exist", ErrNotFound, linkID)
	}
	return link, nil
}

// Links returns all link resources ordered by id.
func (p *Project) Links() []*LinkResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*LinkResource, 0, len(p.links))
	for _, l := range sortedValues(p.links) {
		out = append(out, l.render())
	}
	return out
}

// DeleteLink removes the link and releases its ports.
func (p *Project) DeleteLink(linkID string) error {
	p.mu.Lock()
	link, err := p.getLinkLocked(linkID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	link.detach()
	delete(p.links, link.LinkID)
	err = p.dump()
	res := link.render()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.controller.notifications.EmitProject(p.ID, "link.deleted", res)
	return nil
}
