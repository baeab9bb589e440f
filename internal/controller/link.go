// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"

	"github.com/netlabio/netlabd/internal/topology"
)

// Link types derived from the attached ports.
const (
	LinkTypeEthernet = "ethernet"
	LinkTypeSerial   = "serial"
)

// defaultLabelStyle matches the label styling clients expect for
// auto-generated port labels.
const defaultLabelStyle = "font-family: TypeWriter;font-size: 10.0;font-weight: bold;fill: #000000;fill-opacity: 1.0;"

// Endpoint attaches a link to one node port.
type Endpoint struct {
	Node          *Node
	AdapterNumber int
	PortNumber    int
	Label         *topology.Label
}

// Link is a connection between two node ports, optionally carrying
// traffic-shaping filters. Guarded by the owning project's lock.
type Link struct {
	LinkID          string
	ProjectID       string
	Endpoints       []Endpoint
	Filters         topology.Filters
	Capturing       bool
	CaptureFileName string
	CaptureFilePath string
	Suspend         bool
}

// LinkResource is the wire representation of a link.
type LinkResource struct {
	LinkID          string              `json:"link_id"`
	ProjectID       string              `json:"project_id"`
	Nodes           []topology.LinkNode `json:"nodes"`
	Filters         topology.Filters    `json:"filters"`
	Capturing       bool                `json:"capturing"`
	CaptureFileName *string             `json:"capture_file_name"`
	CaptureFilePath *string             `json:"capture_file_path"`
	LinkType        string              `json:"link_type"`
	Suspend         bool                `json:"suspend"`
}

// addEndpoint attaches a node port to the link, filling in a default label
// when the caller omitted one. The port must be free and the link must not
// already have two endpoints.
func (l *Link) addEndpoint(n *Node, adapter, port int, label *topology.Label) error {
	if len(l.Endpoints) >= 2 {
		return fmt.Errorf("%w: link %s already has two endpoints", ErrConflict, l.LinkID)
	}
	p, err := n.GetPort(adapter, port)
	if err != nil {
		return err
	}
	if p.LinkID != "" && p.LinkID != l.LinkID {
		return fmt.Errorf("%w: port %s on node %s is already attached to another link",
			ErrConflict, p.Name, n.Name)
	}
	for _, end := range l.Endpoints {
		if end.Node == n && end.AdapterNumber == adapter && end.PortNumber == port {
			return fmt.Errorf("%w: port %s on node %s is attached twice", ErrConflict, p.Name, n.Name)
		}
	}

	if label == nil {
		label = defaultPortLabel(adapter, port)
	}
	if label.Style == "" {
		label.Style = defaultLabelStyle
	}

	p.LinkID = l.LinkID
	l.Endpoints = append(l.Endpoints, Endpoint{
		Node:          n,
		AdapterNumber: adapter,
		PortNumber:    port,
		Label:         label,
	})
	return nil
}

// detach releases every port held by the link.
func (l *Link) detach() {
	for _, end := range l.Endpoints {
		if p, err := end.Node.GetPort(end.AdapterNumber, end.PortNumber); err == nil && p.LinkID == l.LinkID {
			p.LinkID = ""
		}
	}
}

// linkType derives the wire type from the attached ports: a link is serial
// as soon as one endpoint port is serial.
func (l *Link) linkType() string {
	for _, end := range l.Endpoints {
		if p, err := end.Node.GetPort(end.AdapterNumber, end.PortNumber); err == nil {
			if p.LinkType == LinkTypeSerial {
				return LinkTypeSerial
			}
		}
	}
	return LinkTypeEthernet
}

// hasNode reports whether the node participates in the link.
func (l *Link) hasNode(n *Node) bool {
	for _, end := range l.Endpoints {
		if end.Node == n {
			return true
		}
	}
	return false
}

// render returns the wire representation. Capture fields are null until a
// capture has been configured, matching the documented resource shape.
func (l *Link) render() *LinkResource {
	res := &LinkResource{
		LinkID:    l.LinkID,
		ProjectID: l.ProjectID,
		Nodes:     l.renderEndpoints(),
		Filters:   l.Filters.Clone(),
		Capturing: l.Capturing,
		LinkType:  l.linkType(),
		Suspend:   l.Suspend,
	}
	if res.Filters == nil {
		res.Filters = topology.Filters{}
	}
	if l.CaptureFileName != "" {
		name := l.CaptureFileName
		res.CaptureFileName = &name
	}
	if l.CaptureFilePath != "" {
		path := l.CaptureFilePath
		res.CaptureFilePath = &path
	}
	return res
}

func (l *Link) renderEndpoints() []topology.LinkNode {
	nodes := make([]topology.LinkNode, 0, len(l.Endpoints))
	for _, end := range l.Endpoints {
		ln := topology.LinkNode{
			NodeID:        end.Node.NodeID,
			AdapterNumber: end.AdapterNumber,
			PortNumber:    end.PortNumber,
		}
		if end.Label != nil {
			label := *end.Label
			ln.Label = &label
		}
		nodes = append(nodes, ln)
	}
	return nodes
}

// toTopology converts the link to its persisted form.
func (l *Link) toTopology() topology.Link {
	return topology.Link{
		LinkID:  l.LinkID,
		Nodes:   l.renderEndpoints(),
		Filters: l.Filters.Clone(),
		Suspend: l.Suspend,
	}
}

// defaultPortLabel builds the label used when a caller attaches a port
// without specifying one: the "adapter/port" short name slightly offset
// from the node.
func defaultPortLabel(adapter, port int) *topology.Label {
	x, y := 5, -25
	return &topology.Label{
		Text:     fmt.Sprintf("%d/%d", adapter, port),
		Style:    defaultLabelStyle,
		Rotation: 0,
		X:        &x,
		Y:        &y,
	}
}
