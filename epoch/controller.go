// Package epoch implements the epoch-level pipeline: per-stage business
// logic (fetch, transform, persist) with an "already done" short-circuit
// on every stage, the epoch processor state machine that coordinates their
// data dependencies, and the orchestrator + creator loops that keep a
// bounded window of epoch rows moving.
package epoch

import (
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

// Controller drives the epoch-level stages against a CL client and the
// storage layer. It holds no mutable state beyond immutable config: every
// stage reads its "already done" flag fresh from the DB.
type Controller struct {
	beacon *beacon.Client
	store  *db.Store
	bt     *chaintime.BeaconTime
	log    logrus.FieldLogger
}

// NewController builds a Controller from already-constructed dependencies.
func NewController(b *beacon.Client, store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger) *Controller {
	return &Controller{beacon: b, store: store, bt: bt, log: log}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
