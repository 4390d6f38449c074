package beacon

import (
	"context"
	"sync"
)

// HealthClient is the minimal surface NodeHealthTracker needs to determine
// whether a configured endpoint is currently reachable.
type HealthClient interface {
	IsHealthy(ctx context.Context) bool
}

// NodeHealthTracker tracks the last-known health of a CL endpoint and
// publishes transitions on HealthUpdates(), so a caller can react to flips
// instead of polling IsHealthy() directly.
type NodeHealthTracker struct {
	mu         sync.RWMutex
	isHealthy  *bool
	node       HealthClient
	healthChan chan bool
}

// NewNodeHealthTracker builds a tracker that assumes the node is healthy
// until the first CheckHealth call proves otherwise.
func NewNodeHealthTracker(node HealthClient) *NodeHealthTracker {
	healthy := true
	return &NodeHealthTracker{
		isHealthy:  &healthy,
		node:       node,
		healthChan: make(chan bool, 1),
	}
}

// IsHealthy returns the last status observed by CheckHealth.
func (n *NodeHealthTracker) IsHealthy() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return *n.isHealthy
}

// HealthUpdates exposes health-status transitions. Sends are non-blocking:
// a slow or absent reader only misses intermediate flips, never blocks
// CheckHealth.
func (n *NodeHealthTracker) HealthUpdates() <-chan bool {
	return n.healthChan
}

// CheckHealth queries the underlying client and returns the fresh status,
// updating the tracked value and publishing it on HealthUpdates() only when
// it changed.
func (n *NodeHealthTracker) CheckHealth(ctx context.Context) bool {
	status := n.node.IsHealthy(ctx)

	n.mu.Lock()
	changed := status != *n.isHealthy
	*n.isHealthy = status
	n.mu.Unlock()

	if changed {
		select {
		case n.healthChan <- status:
		default:
		}
	}
	return status
}
