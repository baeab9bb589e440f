// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/topology"
)

// NodeSpec carries caller-provided node settings.
type NodeSpec struct {
	NodeID      string          `json:"node_id,omitempty"`
	Name        string          `json:"name"`
	NodeType    string          `json:"node_type"`
	ComputeID   string          `json:"compute_id,omitempty"`
	Console     int             `json:"console,omitempty"`
	ConsoleType string          `json:"console_type,omitempty"`
	X           *int            `json:"x,omitempty"`
	Y           *int            `json:"y,omitempty"`
	Z           *int            `json:"z,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Label       *topology.Label `json:"label,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
}

// AddNode creates a node, or returns the existing one when the node id is
// already present.
func (p *Project) AddNode(ctx context.Context, spec NodeSpec) (*Node, error) {
	p.mu.Lock()
	node, err := p.addNodeLocked(ctx, spec, true)
	var rendered *Node
	if node != nil {
		rendered = node.render()
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "node.created", rendered)
	return rendered, nil
}

// addNodeLocked creates the node in the graph. Callers hold p.mu. The dump
// flag is off while loading a topology, where the document is written once
// at the end.
func (p *Project) addNodeLocked(ctx context.Context, spec NodeSpec, dump bool) (*Node, error) {
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	if spec.NodeID != "" {
		if existing, ok := p.nodes[spec.NodeID]; ok {
			return existing, nil
		}
	}

	id := spec.NodeID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid UUID", ErrInvalid, spec.NodeID)
	}

	name, err := p.allocateNodeName(spec.Name)
	if err != nil {
		return nil, err
	}

	computeID := spec.ComputeID
	if computeID == "" {
		computeID = p.controller.compute.ID()
	}

	node := &Node{
		NodeID:      id,
		ProjectID:   p.ID,
		ComputeID:   computeID,
		Name:        name,
		NodeType:    spec.NodeType,
		Status:      NodeStopped,
		Console:     spec.Console,
		ConsoleType: spec.ConsoleType,
		Symbol:      spec.Symbol,
		Label:       spec.Label,
		Properties:  spec.Properties,
	}
	if spec.X != nil {
		node.X = *spec.X
	}
	if spec.Y != nil {
		node.Y = *spec.Y
	}
	if spec.Z != nil {
		node.Z = *spec.Z
	}
	node.initPorts()

	if err := p.controller.compute.CreateNode(ctx, p.ID, node); err != nil {
		p.releaseNodeName(name)
		return nil, err
	}

	p.nodes[id] = node
	if dump {
		if err := p.dump(); err != nil {
			return node, err
		}
	}
	return node, nil
}

// GetNode returns a copy of the node or ErrNotFound.
func (p *Project) GetNode(nodeID string) (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		return nil, err
	}
	return node.render(), nil
}

func (p *Project) getNodeLocked(nodeID string) (*Node, error) {
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	node, ok := p.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node ID %s doesn't exist", ErrNotFound, nodeID)
	}
	return node, nil
}

// Nodes returns copies of all nodes ordered by id.
func (p *Project) Nodes() []*Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Node, 0, len(p.nodes))
	for _, n := range sortedValues(p.nodes) {
		out = append(out, n.render())
	}
	return out
}

// NodePorts returns the port list of a node.
func (p *Project) NodePorts(nodeID string) ([]*Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		return nil, err
	}
	ports := node.Ports()
	out := make([]*Port, len(ports))
	for i, port := range ports {
		cp := *port
		out[i] = &cp
	}
	return out, nil
}

// UpdateNode applies caller-provided settings to an existing node.
func (p *Project) UpdateNode(ctx context.Context, nodeID string, spec NodeSpec) (*Node, error) {
	p.mu.Lock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if spec.Name != "" && spec.Name != node.Name {
		name, allocErr := p.allocateNodeName(spec.Name)
		if allocErr != nil {
			p.mu.Unlock()
			return nil, allocErr
		}
		p.releaseNodeName(node.Name)
		node.Name = name
	}
	if spec.X != nil {
		node.X = *spec.X
	}
	if spec.Y != nil {
		node.Y = *spec.Y
	}
	if spec.Z != nil {
		node.Z = *spec.Z
	}
	if spec.Console != 0 {
		node.Console = spec.Console
	}
	if spec.ConsoleType != "" {
		node.ConsoleType = spec.ConsoleType
	}
	if spec.Symbol != "" {
		node.Symbol = spec.Symbol
	}
	if spec.Label != nil {
		label := *spec.Label
		node.Label = &label
	}
	if spec.Properties != nil {
		node.Properties = spec.Properties
		node.initPorts()
	}
	err = p.dump()
	rendered := node.render()
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "node.updated", rendered)
	return rendered, nil
}

// DeleteNode removes the node and every link attached to it.
func (p *Project) DeleteNode(ctx context.Context, nodeID string) error {
	p.mu.Lock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	var deletedLinks []*LinkResource
	for _, link := range sortedValues(p.links) {
		if link.hasNode(node) {
			link.detach()
			delete(p.links, link.LinkID)
			deletedLinks = append(deletedLinks, link.render())
		}
	}

	p.releaseNodeName(node.Name)
	delete(p.nodes, node.NodeID)
	if err := p.controller.compute.DeleteNode(ctx, p.ID, node); err != nil {
		p.mu.Unlock()
		return err
	}
	err = p.dump()
	rendered := node.render()
	p.mu.Unlock()

	for _, link := range deletedLinks {
		p.controller.notifications.EmitProject(p.ID, "link.deleted", link)
	}
	p.controller.notifications.EmitProject(p.ID, "node.deleted", rendered)
	return err
}

// nodeLifecycle runs one start/stop/suspend transition.
func (p *Project) nodeLifecycle(ctx context.Context, nodeID, op string) (*Node, error) {
	p.mu.Lock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	var status NodeStatus
	switch op {
	case "start":
		status, err = p.controller.compute.StartNode(ctx, p.ID, node)
	case "stop":
		status, err = p.controller.compute.StopNode(ctx, p.ID, node)
	case "suspend":
		status, err = p.controller.compute.SuspendNode(ctx, p.ID, node)
	default:
		err = fmt.Errorf("%w: unknown node operation %q", ErrInvalid, op)
	}
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	node.Status = status
	rendered := node.render()
	p.mu.Unlock()

	p.controller.notifications.EmitProject(p.ID, "node.updated", rendered)
	return rendered, nil
}

// StartNode starts one node.
func (p *Project) StartNode(ctx context.Context, nodeID string) (*Node, error) {
	return p.nodeLifecycle(ctx, nodeID, "start")
}

// StopNode stops one node.
func (p *Project) StopNode(ctx context.Context, nodeID string) (*Node, error) {
	return p.nodeLifecycle(ctx, nodeID, "stop")
}

// SuspendNode suspends one started node.
func (p *Project) SuspendNode(ctx context.Context, nodeID string) (*Node, error) {
	return p.nodeLifecycle(ctx, nodeID, "suspend")
}

// DuplicateNode clones a stopped node at the given position. Properties
// that must stay unique (ids, MAC addresses) are not copied.
func (p *Project) DuplicateNode(ctx context.Context, nodeID string, x, y, z int) (*Node, error) {
	p.mu.Lock()
	node, err := p.getNodeLocked(nodeID)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if node.Status != NodeStopped && !node.isAlwaysRunning() {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot duplicate node data while the node is running", ErrConflict)
	}

	props := make(map[string]any, len(node.Properties))
	for k, v := range node.Properties {
		props[k] = v
	}
	for _, unique := range []string{"mac_addr", "mac_address", "application_id", "dynamips_id"} {
		delete(props, unique)
	}

	spec := NodeSpec{
		NodeID:      uuid.NewString(),
		Name:        node.Name,
		NodeType:    node.NodeType,
		ComputeID:   node.ComputeID,
		Console:     0,
		ConsoleType: node.ConsoleType,
		X:           &x,
		Y:           &y,
		Z:           &z,
		Symbol:      node.Symbol,
		Properties:  props,
	}
	clone, err := p.addNodeLocked(ctx, spec, true)
	var rendered *Node
	if clone != nil {
		rendered = clone.render()
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.controller.notifications.EmitProject(p.ID, "node.created", rendered)
	return rendered, nil
}
