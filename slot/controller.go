// Package slot implements the slot-level pipeline: the per-branch
// fetch/process stages, the slot processor state machine that drives one
// slot through them, and the orchestrator that advances slots within an
// epoch in strictly increasing order.
package slot

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/execution"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

// Controller drives the per-slot stages against a CL client, an EL client,
// and the storage layer. Like epoch.Controller it holds no mutable state:
// every branch reads its "already done" flag fresh from the DB.
type Controller struct {
	beacon    *beacon.Client
	execution *execution.Client
	store     *db.Store
	bt        *chaintime.BeaconTime
	log       logrus.FieldLogger
}

// NewController builds a Controller from already-constructed dependencies.
func NewController(b *beacon.Client, e *execution.Client, store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger) *Controller {
	return &Controller{beacon: b, execution: e, store: store, bt: bt, log: log}
}

// GetBlock fetches the full block at slot. A missing slot returns
// indexererr.ErrSlotMissed.
func (c *Controller) GetBlock(ctx context.Context, slot uint64) (*beacon.Block, error) {
	return c.beacon.GetBlock(ctx, slot)
}
