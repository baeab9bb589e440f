// SPDX-License-Identifier: MIT

package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	xlog "github.com/netlabio/netlabd/internal/log"
)

var (
	// ErrUnsupportedRevision is returned when a document was written by a
	// newer controller than this build.
	ErrUnsupportedRevision = errors.New("topology revision not supported")

	// ErrCorrupt is returned when a document cannot be decoded at all.
	ErrCorrupt = errors.New("corrupted topology file")
)

// Load reads a .gns3 document from path, upgrading documents with
// revisions older than CurrentRevision in memory. The file on disk is not
// rewritten; callers persist the upgraded document with Save.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is project-confined
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	revision := 1
	if v, ok := raw["revision"]; ok {
		n, err := asInt(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid revision: %v", ErrCorrupt, err)
		}
		revision = n
	}
	if revision > CurrentRevision {
		return nil, fmt.Errorf("%w: revision %d, supported up to %d",
			ErrUnsupportedRevision, revision, CurrentRevision)
	}
	if revision < 1 {
		return nil, fmt.Errorf("%w: revision %d", ErrCorrupt, revision)
	}

	logger := xlog.WithComponent("topology")
	for rev := revision; rev < CurrentRevision; rev++ {
		upgrades[rev-1](raw)
		logger.Debug().
			Int("from", rev).
			Int("to", rev+1).
			Str("path", path).
			Msg("upgraded topology revision")
	}
	raw["revision"] = CurrentRevision

	// Round-trip through JSON to decode the upgraded document strictly.
	upgraded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode upgraded topology: %w", err)
	}
	var f File
	if err := json.Unmarshal(upgraded, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// upgrades[i] migrates a raw document from revision i+1 to i+2. Each step
// only fills in fields the newer revision introduced.
var upgrades = []func(map[string]any){
	// 1 -> 2: scene dimensions and auto_close became mandatory.
	func(raw map[string]any) {
		setDefault(raw, "scene_width", 2000)
		setDefault(raw, "scene_height", 1000)
		setDefault(raw, "auto_close", true)
		setDefault(raw, "auto_start", false)
		setDefault(raw, "auto_open", false)
	},
	// 2 -> 3: zoom and the drawings section were added.
	func(raw map[string]any) {
		setDefault(raw, "zoom", 100)
		if topo, ok := raw["topology"].(map[string]any); ok {
			setDefault(topo, "drawings", []any{})
		}
	},
	// 3 -> 4: links gained filters and the suspend flag.
	func(raw map[string]any) {
		eachLink(raw, func(link map[string]any) {
			setDefault(link, "filters", map[string]any{})
			setDefault(link, "suspend", false)
		})
	},
	// 4 -> 5: per-endpoint labels and the grid display flags.
	func(raw map[string]any) {
		setDefault(raw, "show_grid", false)
		setDefault(raw, "snap_to_grid", false)
		setDefault(raw, "show_layers", false)
		setDefault(raw, "show_interface_labels", false)
	},
}

func setDefault(m map[string]any, key string, val any) {
	if _, ok := m[key]; !ok {
		m[key] = val
	}
}

func eachLink(raw map[string]any, fn func(map[string]any)) {
	topo, ok := raw["topology"].(map[string]any)
	if !ok {
		return
	}
	links, ok := topo["links"].([]any)
	if !ok {
		return
	}
	for _, l := range links {
		if link, ok := l.(map[string]any); ok {
			fn(link)
		}
	}
}

// Validate performs structural checks on a decoded document.
func (f *File) Validate() error {
	if f.Type != FileType {
		return fmt.Errorf("%w: type %q", ErrCorrupt, f.Type)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: missing project name", ErrCorrupt)
	}
	nodeIDs := make(map[string]struct{}, len(f.Topology.Nodes))
	for _, n := range f.Topology.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("%w: node without node_id", ErrCorrupt)
		}
		if _, dup := nodeIDs[n.NodeID]; dup {
			return fmt.Errorf("%w: duplicate node_id %s", ErrCorrupt, n.NodeID)
		}
		nodeIDs[n.NodeID] = struct{}{}
	}
	for _, l := range f.Topology.Links {
		for _, end := range l.Nodes {
			if _, ok := nodeIDs[end.NodeID]; !ok {
				return fmt.Errorf("%w: link %s references unknown node %s",
					ErrCorrupt, l.LinkID, end.NodeID)
			}
		}
		if err := ValidateFilters(l.Filters); err != nil {
			return fmt.Errorf("link %s: %w", l.LinkID, err)
		}
	}
	return nil
}

// Save writes the document atomically and durably: the content is fsynced
// to a temp file which then replaces path, so a crash never leaves a torn
// topology file behind.
func Save(path string, f *File) error {
	f.Revision = CurrentRevision
	f.Type = FileType

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending topology file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := xlog.WithComponent("topology")
			logger.Debug().Err(err).Msg("cleanup pending topology file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "    ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace topology file: %w", err)
	}
	return nil
}
