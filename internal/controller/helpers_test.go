// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netlabio/netlabd/internal/notification"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := New(Options{
		ProjectsDir:   t.TempDir(),
		Version:       "test",
		Notifications: notification.NewManager(16),
	})
	require.NoError(t, err)
	return c
}

func newOpenProject(t *testing.T, c *Controller, name string) *Project {
	t.Helper()
	p, err := c.CreateProject(context.Background(), ProjectSpec{Name: name})
	require.NoError(t, err)
	return p
}

func addTestNode(t *testing.T, p *Project, name, nodeType string) *Node {
	t.Helper()
	node, err := p.AddNode(context.Background(), NodeSpec{Name: name, NodeType: nodeType})
	require.NoError(t, err)
	return node
}
