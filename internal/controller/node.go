// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"

	"github.com/netlabio/netlabd/internal/topology"
)

// Node is a device participating in a project's topology. All fields are
// guarded by the owning project's lock.
type Node struct {
	NodeID      string          `json:"node_id"`
	ProjectID   string          `json:"project_id"`
	ComputeID   string          `json:"compute_id"`
	Name        string          `json:"name"`
	NodeType    string          `json:"node_type"`
	Status      NodeStatus      `json:"status"`
	Console     int             `json:"console,omitempty"`
	ConsoleType string          `json:"console_type,omitempty"`
	X           int             `json:"x"`
	Y           int             `json:"y"`
	Z           int             `json:"z"`
	Symbol      string          `json:"symbol,omitempty"`
	Label       *topology.Label `json:"label,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`

	ports map[portKey]*Port
}

type portKey struct {
	adapter int
	port    int
}

// Port is one attachable interface of a node.
type Port struct {
	AdapterNumber int    `json:"adapter_number"`
	PortNumber    int    `json:"port_number"`
	Name          string `json:"name"`
	LinkType      string `json:"link_type"`
	LinkID        string `json:"-"`
}

// portLayout describes how many ports a node type exposes.
type portLayout struct {
	adapters        int
	portsPerAdapter int
	linkType        string
	portNameFormat  string
}

// defaultPortLayouts maps node types to their port geometry. Types not
// listed fall back to a single ethernet port.
var defaultPortLayouts = map[string]portLayout{
	"ethernet_switch":    {adapters: 1, portsPerAdapter: 8, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"ethernet_hub":       {adapters: 1, portsPerAdapter: 8, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"frame_relay_switch": {adapters: 1, portsPerAdapter: 8, linkType: LinkTypeSerial, portNameFormat: "Serial%d"},
	"atm_switch":         {adapters: 1, portsPerAdapter: 8, linkType: LinkTypeSerial, portNameFormat: "Serial%d"},
	"vpcs":               {adapters: 1, portsPerAdapter: 1, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"qemu":               {adapters: 4, portsPerAdapter: 1, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"docker":             {adapters: 4, portsPerAdapter: 1, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"cloud":              {adapters: 1, portsPerAdapter: 4, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"nat":                {adapters: 1, portsPerAdapter: 1, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"iou":                {adapters: 2, portsPerAdapter: 4, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"},
	"dynamips":           {adapters: 2, portsPerAdapter: 2, linkType: LinkTypeEthernet, portNameFormat: "FastEthernet%d"},
}

func layoutFor(n *Node) portLayout {
	layout, ok := defaultPortLayouts[n.NodeType]
	if !ok {
		layout = portLayout{adapters: 1, portsPerAdapter: 1, linkType: LinkTypeEthernet, portNameFormat: "Ethernet%d"}
	}
	// Appliances can widen the adapter count through their properties.
	if n.Properties != nil {
		if v, ok := n.Properties["adapters"]; ok {
			if count, err := toInt(v); err == nil && count > 0 {
				layout.adapters = count
			}
		}
	}
	return layout
}

// initPorts builds the port set from the node type's layout.
func (n *Node) initPorts() {
	layout := layoutFor(n)
	n.ports = make(map[portKey]*Port, layout.adapters*layout.portsPerAdapter)
	for adapter := 0; adapter < layout.adapters; adapter++ {
		for port := 0; port < layout.portsPerAdapter; port++ {
			n.ports[portKey{adapter, port}] = &Port{
				AdapterNumber: adapter,
				PortNumber:    port,
				Name:          fmt.Sprintf(layout.portNameFormat+"/%d", adapter, port),
				LinkType:      layout.linkType,
			}
		}
	}
}

// GetPort returns the port at (adapter, port) or ErrNotFound.
func (n *Node) GetPort(adapter, port int) (*Port, error) {
	if n.ports == nil {
		n.initPorts()
	}
	p, ok := n.ports[portKey{adapter, port}]
	if !ok {
		return nil, fmt.Errorf("%w: node %s has no port %d/%d", ErrNotFound, n.Name, adapter, port)
	}
	return p, nil
}

// Ports returns all ports ordered by adapter then port number.
func (n *Node) Ports() []*Port {
	if n.ports == nil {
		n.initPorts()
	}
	layout := layoutFor(n)
	out := make([]*Port, 0, len(n.ports))
	for adapter := 0; adapter < layout.adapters; adapter++ {
		for port := 0; port < layout.portsPerAdapter; port++ {
			if p, ok := n.ports[portKey{adapter, port}]; ok {
				out = append(out, p)
			}
		}
	}
	return out
}

// isAlwaysRunning reports node types without a lifecycle of their own.
func (n *Node) isAlwaysRunning() bool {
	switch n.NodeType {
	case "cloud", "nat", "ethernet_hub", "ethernet_switch":
		return true
	}
	return false
}

// render returns a deep copy safe to hand to JSON encoding outside the
// project lock.
func (n *Node) render() *Node {
	cp := *n
	cp.ports = nil
	if n.Label != nil {
		label := *n.Label
		cp.Label = &label
	}
	if n.Properties != nil {
		props := make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			props[k] = v
		}
		cp.Properties = props
	}
	return &cp
}

// toTopology converts the node to its persisted form.
func (n *Node) toTopology() topology.Node {
	t := topology.Node{
		NodeID:      n.NodeID,
		ComputeID:   n.ComputeID,
		Name:        n.Name,
		NodeType:    n.NodeType,
		Console:     n.Console,
		ConsoleType: n.ConsoleType,
		X:           n.X,
		Y:           n.Y,
		Z:           n.Z,
		Symbol:      n.Symbol,
		Properties:  n.Properties,
	}
	if n.Label != nil {
		label := *n.Label
		t.Label = &label
	}
	return t
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
