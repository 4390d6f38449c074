// Package reliable implements the dual-endpoint, concurrency-gated,
// retrying request executor every CL/EL call goes through: a per-node-type
// Gate bounds in-flight requests, with automatic primary/secondary fallback
// and exponential backoff between attempts.
package reliable

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of in-flight requests to one node, exposing
// (active, pending, capacity) for observability.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	active   int64
	pending  int64

	activeGauge   prometheus.Gauge
	pendingGauge  prometheus.Gauge
	capacityGauge prometheus.Gauge
}

// NewGate builds a Gate capped at capacity concurrent requests. nodeType and
// endpoint label the exported gauges (e.g. "consensus"/"primary").
func NewGate(capacity int64, nodeType, endpoint string) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	labels := prometheus.Labels{"node_type": nodeType, "endpoint": endpoint}
	g := &Gate{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		activeGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "indexer_gate_active",
			Help:        "Number of in-flight requests currently holding the gate.",
			ConstLabels: labels,
		}),
		pendingGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "indexer_gate_pending",
			Help:        "Number of requests waiting to acquire the gate.",
			ConstLabels: labels,
		}),
		capacityGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "indexer_gate_capacity",
			Help:        "Configured concurrency capacity of the gate.",
			ConstLabels: labels,
		}),
	}
	g.capacityGauge.Set(float64(capacity))
	return g
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	atomic.AddInt64(&g.pending, 1)
	g.pendingGauge.Set(float64(atomic.LoadInt64(&g.pending)))
	defer func() {
		atomic.AddInt64(&g.pending, -1)
		g.pendingGauge.Set(float64(atomic.LoadInt64(&g.pending)))
	}()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	atomic.AddInt64(&g.active, 1)
	g.activeGauge.Set(float64(atomic.LoadInt64(&g.active)))
	return nil
}

// Release frees the held slot.
func (g *Gate) Release() {
	atomic.AddInt64(&g.active, -1)
	g.activeGauge.Set(float64(atomic.LoadInt64(&g.active)))
	g.sem.Release(1)
}

// Stats is a snapshot of (active, pending, capacity).
type Stats struct {
	Active   int64
	Pending  int64
	Capacity int64
}

// Stats returns the current snapshot.
func (g *Gate) Stats() Stats {
	return Stats{
		Active:   atomic.LoadInt64(&g.active),
		Pending:  atomic.LoadInt64(&g.pending),
		Capacity: g.capacity,
	}
}
