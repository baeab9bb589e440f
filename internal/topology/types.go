// SPDX-License-Identifier: MIT

// Package topology models the .gns3 project document: the versioned JSON
// file describing nodes, links and drawings of a network-emulation project.
package topology

import "encoding/json"

// CurrentRevision is the newest .gns3 document revision this build reads
// and writes. Older revisions (1 and up) are upgraded on load.
const CurrentRevision = 5

// FileType is the "type" marker stored in every topology document.
const FileType = "topology"

// File is the root of a .gns3 document.
type File struct {
	Name                string   `json:"name"`
	ProjectID           string   `json:"project_id"`
	Revision            int      `json:"revision"`
	Type                string   `json:"type"`
	Version             string   `json:"version"`
	AutoStart           bool     `json:"auto_start"`
	AutoClose           bool     `json:"auto_close"`
	AutoOpen            bool     `json:"auto_open"`
	SceneHeight         int      `json:"scene_height"`
	SceneWidth          int      `json:"scene_width"`
	Zoom                int      `json:"zoom"`
	ShowLayers          bool     `json:"show_layers"`
	SnapToGrid          bool     `json:"snap_to_grid"`
	ShowGrid            bool     `json:"show_grid"`
	ShowInterfaceLabels bool     `json:"show_interface_labels"`
	Topology            Topology `json:"topology"`
}

// Topology groups the persisted entities of a project.
type Topology struct {
	Computes []Compute `json:"computes"`
	Drawings []Drawing `json:"drawings"`
	Links    []Link    `json:"links"`
	Nodes    []Node    `json:"nodes"`
}

// Compute identifies a server that hosts nodes. netlabd runs everything on
// the built-in local compute but preserves the section for compatibility.
type Compute struct {
	ComputeID string `json:"compute_id"`
	Name      string `json:"name,omitempty"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

// Node is a device in the topology graph.
type Node struct {
	NodeID      string         `json:"node_id"`
	ComputeID   string         `json:"compute_id"`
	Name        string         `json:"name"`
	NodeType    string         `json:"node_type"`
	Console     int            `json:"console,omitempty"`
	ConsoleType string         `json:"console_type,omitempty"`
	X           int            `json:"x"`
	Y           int            `json:"y"`
	Z           int            `json:"z"`
	Symbol      string         `json:"symbol,omitempty"`
	Label       *Label         `json:"label,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Link is a connection between exactly two node ports.
type Link struct {
	LinkID  string     `json:"link_id"`
	Nodes   []LinkNode `json:"nodes"`
	Filters Filters    `json:"filters,omitempty"`
	Suspend bool       `json:"suspend"`
}

// LinkNode is one endpoint of a link: a (node, adapter, port) triple with
// an optional display label.
type LinkNode struct {
	NodeID        string `json:"node_id"`
	AdapterNumber int    `json:"adapter_number"`
	PortNumber    int    `json:"port_number"`
	Label         *Label `json:"label,omitempty"`
}

// Label is the display annotation of a node or link endpoint. X and Y are
// pointers so an absent offset survives a round trip unchanged.
type Label struct {
	Text     string `json:"text"`
	Style    string `json:"style,omitempty"`
	Rotation int    `json:"rotation"`
	X        *int   `json:"x,omitempty"`
	Y        *int   `json:"y,omitempty"`
}

// Drawing is a free-form SVG annotation on the scene.
type Drawing struct {
	DrawingID string `json:"drawing_id"`
	SVG       string `json:"svg"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Rotation  int    `json:"rotation"`
	Locked    bool   `json:"locked"`
}

// Filters carries the traffic-shaping parameters of a link, keyed by
// filter name. Values are heterogeneous: numeric for the packet filters,
// strings for bpf expressions.
type Filters map[string][]any

// Clone returns a deep copy of the filter map.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for name, vals := range f {
		cp := make([]any, len(vals))
		copy(cp, vals)
		out[name] = cp
	}
	return out
}

// normalizeNumbers converts float64 values that hold integers back to int
// so round-tripped documents compare stable.
func (f Filters) normalizeNumbers() {
	for _, vals := range f {
		for i, v := range vals {
			if fv, ok := v.(float64); ok && fv == float64(int(fv)) {
				vals[i] = int(fv)
			}
		}
	}
}

// UnmarshalJSON normalizes numeric parameters after decoding.
func (f *Filters) UnmarshalJSON(data []byte) error {
	var raw map[string][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ff := Filters(raw)
	ff.normalizeNumbers()
	*f = ff
	return nil
}
