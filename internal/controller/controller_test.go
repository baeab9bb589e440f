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

	"github.com/netlabio/netlabd/internal/archive"
	"github.com/netlabio/netlabd/internal/notification"
)

func TestCreateProjectRejectsDuplicateID(t *testing.T) {
	c := newTestController(t)
	id := uuid.NewString()

	_, err := c.CreateProject(context.Background(), ProjectSpec{Name: "lab1", ProjectID: id})
	require.NoError(t, err)
	_, err = c.CreateProject(context.Background(), ProjectSpec{Name: "lab2", ProjectID: id})
	require.ErrorIs(t, err, ErrConflict)
}

func TestGetProjectNotFound(t *testing.T) {
	c := newTestController(t)
	_, err := c.GetProject(uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenCloseProjectUnknownID(t *testing.T) {
	c := newTestController(t)
	_, err := c.OpenProject(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.CloseProject(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRegistersProjectsFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := New(Options{ProjectsDir: dir, Version: "test", Notifications: notification.NewManager(16)})
	require.NoError(t, err)
	p, err := c1.CreateProject(ctx, ProjectSpec{Name: "lab1"})
	require.NoError(t, err)
	addTestNode(t, p, "R1", "vpcs")
	require.NoError(t, c1.CloseAll(ctx))

	// Directories without a topology document are not projects.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o750))

	c2, err := New(Options{ProjectsDir: dir, Version: "test", Notifications: notification.NewManager(16)})
	require.NoError(t, err)
	require.NoError(t, c2.Load(ctx))

	projects := c2.Projects()
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)
	assert.Equal(t, "lab1", projects[0].Render().Name)
	assert.Equal(t, StatusClosed, projects[0].Render().Status)

	opened, err := c2.OpenProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, opened.Nodes(), 1)
}

func TestLoadOpensAutoOpenProjects(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := New(Options{ProjectsDir: dir, Version: "test", Notifications: notification.NewManager(16)})
	require.NoError(t, err)
	autoOpen := true
	p, err := c1.CreateProject(ctx, ProjectSpec{Name: "lab1", AutoOpen: &autoOpen})
	require.NoError(t, err)
	require.NoError(t, c1.CloseAll(ctx))

	c2, err := New(Options{ProjectsDir: dir, Version: "test", Notifications: notification.NewManager(16)})
	require.NoError(t, err)
	require.NoError(t, c2.Load(ctx))

	loaded, err := c2.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, loaded.Render().Status)
}

func TestDeleteProjectRemovesDirectory(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	path := p.Path

	require.NoError(t, c.DeleteProject(ctx, p.ID))
	_, err := c.GetProject(p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.ErrorIs(t, c.DeleteProject(ctx, p.ID), ErrNotFound)
}

func TestDuplicateProject(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	addTestNode(t, p, "R1", "vpcs")

	clone, err := c.DuplicateProject(ctx, p.ID, "lab1-copy")
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, clone.ID)
	assert.Equal(t, "lab1-copy", clone.Render().Name)
	assert.Equal(t, StatusClosed, clone.Render().Status)

	opened, err := c.OpenProject(ctx, clone.ID)
	require.NoError(t, err)
	nodes := opened.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "R1", nodes[0].Name)

	// The source stays untouched.
	assert.Equal(t, StatusOpened, p.Render().Status)
	assert.Len(t, p.Nodes(), 1)
}

func TestDuplicateClosedProjectIsReclosed(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	_, err := c.CloseProject(ctx, p.ID)
	require.NoError(t, err)

	clone, err := c.DuplicateProject(ctx, p.ID, "lab1-copy")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, clone.Render().Status)
	assert.Equal(t, StatusClosed, p.Render().Status)
}

func TestImportProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")
	addTestNode(t, p, "R1", "vpcs")

	archivePath := filepath.Join(t.TempDir(), "lab1.gns3project")
	require.NoError(t, archive.ExportToFile(ctx, p.Path, archivePath))

	imported, err := c.ImportProject(ctx, archivePath, "", "restored")
	require.NoError(t, err)
	assert.Equal(t, "restored", imported.Render().Name)
	assert.Equal(t, "restored.gns3", imported.Filename)
	assert.Equal(t, StatusClosed, imported.Render().Status)

	opened, err := c.OpenProject(ctx, imported.ID)
	require.NoError(t, err)
	assert.Len(t, opened.Nodes(), 1)
}

func TestImportProjectValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p := newOpenProject(t, c, "lab1")

	archivePath := filepath.Join(t.TempDir(), "lab1.gns3project")
	require.NoError(t, archive.ExportToFile(ctx, p.Path, archivePath))

	_, err := c.ImportProject(ctx, archivePath, "not-a-uuid", "")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = c.ImportProject(ctx, archivePath, p.ID, "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestCloseAllClosesOpenProjects(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	p1 := newOpenProject(t, c, "lab1")
	p2 := newOpenProject(t, c, "lab2")

	require.NoError(t, c.CloseAll(ctx))
	assert.Equal(t, StatusClosed, p1.Render().Status)
	assert.Equal(t, StatusClosed, p2.Render().Status)
}
