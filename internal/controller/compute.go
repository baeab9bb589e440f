// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"fmt"
)

// NodeStatus is the lifecycle state of a node.
type NodeStatus string

const (
	NodeStopped   NodeStatus = "stopped"
	NodeStarted   NodeStatus = "started"
	NodeSuspended NodeStatus = "suspended"
)

// LocalComputeID identifies the built-in compute.
const LocalComputeID = "local"

// Compute hosts the emulated devices of a project. netlabd ships a single
// in-process implementation; the interface keeps the controller logic
// independent of where nodes actually run.
type Compute interface {
	ID() string
	CreateNode(ctx context.Context, projectID string, n *Node) error
	DeleteNode(ctx context.Context, projectID string, n *Node) error
	StartNode(ctx context.Context, projectID string, n *Node) (NodeStatus, error)
	StopNode(ctx context.Context, projectID string, n *Node) (NodeStatus, error)
	SuspendNode(ctx context.Context, projectID string, n *Node) (NodeStatus, error)
}

// localCompute tracks node state in process. It enforces the status
// machine but performs no real emulation.
type localCompute struct{}

// NewLocalCompute returns the built-in compute.
func NewLocalCompute() Compute {
	return localCompute{}
}

func (localCompute) ID() string { return LocalComputeID }

func (localCompute) CreateNode(_ context.Context, _ string, n *Node) error {
	if n.NodeType == "" {
		return fmt.Errorf("%w: node type must not be empty", ErrInvalid)
	}
	return nil
}

func (localCompute) DeleteNode(_ context.Context, _ string, _ *Node) error {
	return nil
}

func (localCompute) StartNode(_ context.Context, _ string, n *Node) (NodeStatus, error) {
	return NodeStarted, nil
}

func (localCompute) StopNode(_ context.Context, _ string, n *Node) (NodeStatus, error) {
	return NodeStopped, nil
}

func (localCompute) SuspendNode(_ context.Context, _ string, n *Node) (NodeStatus, error) {
	if n.Status != NodeStarted {
		return n.Status, fmt.Errorf("%w: cannot suspend a %s node", ErrConflict, n.Status)
	}
	return NodeSuspended, nil
}
