// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlabio/netlabd/internal/topology"
)

func TestCreateProjectWritesTopologyDocument(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	res := p.Render()
	assert.Equal(t, "lab1", res.Name)
	assert.Equal(t, StatusOpened, res.Status)
	assert.Equal(t, "lab1.gns3", res.Filename)
	assert.Equal(t, 2000, res.SceneWidth)
	assert.Equal(t, 1000, res.SceneHeight)
	assert.Equal(t, 100, res.Zoom)
	assert.True(t, res.AutoClose)

	f, err := topology.Load(filepath.Join(p.Path, p.Filename))
	require.NoError(t, err)
	assert.Equal(t, "lab1", f.Name)
	assert.Equal(t, p.ID, f.ProjectID)
	assert.Equal(t, topology.CurrentRevision, f.Revision)
}

func TestCreateProjectRejectsInvalidSpec(t *testing.T) {
	c := newTestController(t)

	_, err := c.CreateProject(context.Background(), ProjectSpec{})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = c.CreateProject(context.Background(), ProjectSpec{Name: "lab", ProjectID: "not-a-uuid"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestCreateProjectRejectsPathEscapingNames(t *testing.T) {
	c := newTestController(t)

	for _, name := range []string{"../../pwn", "a/b", `a\b`, "..", "lab..name"} {
		_, err := c.CreateProject(context.Background(), ProjectSpec{Name: name})
		require.ErrorIs(t, err, ErrInvalid, "name %q", name)
	}

	// Nothing may have been written above the projects root.
	parent := filepath.Dir(c.projectsDir)
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".gns3")
	}
}

func TestUpdateProjectRejectsPathEscapingName(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	_, err := p.Update(ProjectSpec{Name: "../../pwn"})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, "lab1", p.Render().Name)
}

func TestProjectUpdatePersistsSettings(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	zoom := 50
	grid := true
	res, err := p.Update(ProjectSpec{Name: "renamed", Zoom: &zoom, ShowGrid: &grid})
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.Name)
	assert.Equal(t, 50, res.Zoom)
	assert.True(t, res.ShowGrid)

	f, err := topology.Load(filepath.Join(p.Path, p.Filename))
	require.NoError(t, err)
	assert.Equal(t, "renamed", f.Name)
	assert.Equal(t, 50, f.Zoom)
	assert.True(t, f.ShowGrid)
}

func TestCloseAndReopenRestoresGraph(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	n1 := addTestNode(t, p, "R1", "vpcs")
	n2 := addTestNode(t, p, "R2", "vpcs")
	link, _, err := p.PutLink(uuid.NewString(), LinkSpec{Nodes: []topology.LinkNode{
		{NodeID: n1.NodeID, AdapterNumber: 0, PortNumber: 0},
		{NodeID: n2.NodeID, AdapterNumber: 0, PortNumber: 0},
	}})
	require.NoError(t, err)
	drawing, err := p.AddDrawing(DrawingSpec{SVG: "<svg></svg>", X: 10, Y: 20})
	require.NoError(t, err)

	require.NoError(t, p.Close(ctx))
	assert.Equal(t, StatusClosed, p.Render().Status)
	_, err = p.AddNode(ctx, NodeSpec{Name: "R3", NodeType: "vpcs"})
	require.ErrorIs(t, err, ErrProjectClosed)

	require.NoError(t, p.Open(ctx))
	assert.Equal(t, StatusOpened, p.Render().Status)

	got, err := p.GetNode(n1.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "R1", got.Name)
	reloaded, err := p.GetLink(link.LinkID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Nodes, 2)
	_, err = p.GetDrawing(drawing.DrawingID)
	require.NoError(t, err)
}

func TestOpenCorruptDocumentKeepsProjectClosed(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	require.NoError(t, p.Close(ctx))

	path := filepath.Join(p.Path, p.Filename)
	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0o600))

	err := p.Open(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusClosed, p.Render().Status)

	// The document is left for the operator to repair.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{ not json", string(data))
}

func TestDeleteNodeCascadesAttachedLinks(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	n1 := addTestNode(t, p, "R1", "vpcs")
	n2 := addTestNode(t, p, "R2", "vpcs")
	n3 := addTestNode(t, p, "R3", "vpcs")
	link, _, err := p.PutLink(uuid.NewString(), LinkSpec{Nodes: []topology.LinkNode{
		{NodeID: n1.NodeID, AdapterNumber: 0, PortNumber: 0},
		{NodeID: n2.NodeID, AdapterNumber: 0, PortNumber: 0},
	}})
	require.NoError(t, err)

	require.NoError(t, p.DeleteNode(ctx, n1.NodeID))
	_, err = p.GetNode(n1.NodeID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = p.GetLink(link.LinkID)
	require.ErrorIs(t, err, ErrNotFound)

	// The surviving endpoint's port is free again.
	_, _, err = p.PutLink(uuid.NewString(), LinkSpec{Nodes: []topology.LinkNode{
		{NodeID: n2.NodeID, AdapterNumber: 0, PortNumber: 0},
		{NodeID: n3.NodeID, AdapterNumber: 0, PortNumber: 0},
	}})
	require.NoError(t, err)
}

func TestProjectWideLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	addTestNode(t, p, "R1", "vpcs")
	addTestNode(t, p, "R2", "vpcs")

	require.NoError(t, p.StartAll(ctx))
	for _, n := range p.Nodes() {
		assert.Equal(t, NodeStarted, n.Status)
	}
	assert.True(t, p.IsRunning())

	require.NoError(t, p.SuspendAll(ctx))
	for _, n := range p.Nodes() {
		assert.Equal(t, NodeSuspended, n.Status)
	}

	require.NoError(t, p.StopAll(ctx))
	for _, n := range p.Nodes() {
		assert.Equal(t, NodeStopped, n.Status)
	}
	assert.False(t, p.IsRunning())
}

func TestSuspendAllSkipsStoppedNodes(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	running := addTestNode(t, p, "R1", "vpcs")
	addTestNode(t, p, "R2", "vpcs")
	_, err := p.StartNode(ctx, running.NodeID)
	require.NoError(t, err)

	require.NoError(t, p.SuspendAll(ctx))
	got, err := p.GetNode(running.NodeID)
	require.NoError(t, err)
	assert.Equal(t, NodeSuspended, got.Status)
	for _, n := range p.Nodes() {
		if n.NodeID == running.NodeID {
			continue
		}
		assert.Equal(t, NodeStopped, n.Status)
	}
}

func TestUpdateNodeKeepsPositionOnPartialSpec(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	x, y := 150, -80
	node, err := p.AddNode(ctx, NodeSpec{Name: "R1", NodeType: "vpcs", X: &x, Y: &y})
	require.NoError(t, err)

	// A rename-only update must not move the node.
	renamed, err := p.UpdateNode(ctx, node.NodeID, NodeSpec{Name: "Edge"})
	require.NoError(t, err)
	assert.Equal(t, "Edge", renamed.Name)
	assert.Equal(t, 150, renamed.X)
	assert.Equal(t, -80, renamed.Y)

	nx := 10
	moved, err := p.UpdateNode(ctx, node.NodeID, NodeSpec{X: &nx})
	require.NoError(t, err)
	assert.Equal(t, 10, moved.X)
	assert.Equal(t, -80, moved.Y)
	assert.Equal(t, "Edge", moved.Name)
}

func TestDuplicateNodeStripsUniqueProperties(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	node, err := p.AddNode(ctx, NodeSpec{
		Name:     "R1",
		NodeType: "qemu",
		Console:  5000,
		Properties: map[string]any{
			"mac_addr": "00:11:22:33:44:55",
			"ram":      256,
		},
	})
	require.NoError(t, err)

	clone, err := p.DuplicateNode(ctx, node.NodeID, 100, 200, 1)
	require.NoError(t, err)
	assert.Equal(t, "R2", clone.Name)
	assert.NotEqual(t, node.NodeID, clone.NodeID)
	assert.Equal(t, 100, clone.X)
	assert.Equal(t, 200, clone.Y)
	assert.Zero(t, clone.Console)
	assert.NotContains(t, clone.Properties, "mac_addr")
	assert.Equal(t, 256, clone.Properties["ram"])
}

func TestDuplicateNodeRefusesRunningNode(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	node := addTestNode(t, p, "R1", "vpcs")
	_, err := p.StartNode(ctx, node.NodeID)
	require.NoError(t, err)

	_, err = p.DuplicateNode(ctx, node.NodeID, 0, 0, 0)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	addTestNode(t, p, "R1", "vpcs")

	_, err := p.CreateSnapshot(ctx, "")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = p.CreateSnapshot(ctx, "../../../outside/evil")
	require.ErrorIs(t, err, ErrInvalid)

	snap, err := p.CreateSnapshot(ctx, "before")
	require.NoError(t, err)
	assert.Equal(t, "before", snap.Name)
	assert.Equal(t, p.ID, snap.ProjectID)
	assert.NotEmpty(t, snap.SnapshotID)

	_, err = p.CreateSnapshot(ctx, "before")
	require.ErrorIs(t, err, ErrConflict)

	snaps, err := p.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.SnapshotID, snaps[0].SnapshotID)

	got, err := p.GetSnapshot(snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	require.NoError(t, p.DeleteSnapshot(snap.SnapshotID))
	require.ErrorIs(t, p.DeleteSnapshot(snap.SnapshotID), ErrNotFound)
	snaps, err = p.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRestoreSnapshotRewindsTopology(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	keep := addTestNode(t, p, "R1", "vpcs")

	snap, err := p.CreateSnapshot(ctx, "baseline")
	require.NoError(t, err)

	later := addTestNode(t, p, "R2", "vpcs")
	require.NoError(t, p.RestoreSnapshot(ctx, snap.SnapshotID))

	assert.Equal(t, StatusOpened, p.Render().Status)
	_, err = p.GetNode(keep.NodeID)
	require.NoError(t, err)
	_, err = p.GetNode(later.NodeID)
	require.ErrorIs(t, err, ErrNotFound)

	// Snapshots survive a restore.
	snaps, err := p.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}
