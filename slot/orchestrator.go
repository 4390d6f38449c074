package slot

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

// Orchestrator advances the slots of one epoch in strictly increasing
// order, never running two slot processors concurrently. It is the
// epoch.SlotsFunc an epoch.Processor drives once committees for the epoch
// are in place.
type Orchestrator struct {
	store     *db.Store
	bt        *chaintime.BeaconTime
	log       logrus.FieldLogger
	processor *Processor
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger, processor *Processor) *Orchestrator {
	return &Orchestrator{store: store, bt: bt, log: log, processor: processor}
}

// RunForEpoch processes every slot of epoch in order, from its first slot
// (or the chain's lookback slot, whichever is later) through its last. It
// satisfies epoch.SlotsFunc.
func (o *Orchestrator) RunForEpoch(ctx context.Context, epoch uint64) error {
	start, end := o.bt.EpochSlots(epoch)
	if lookback := o.bt.LookbackSlot(); lookback > start {
		start = lookback
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, allProcessed, err := o.store.NextUnprocessedSlot(ctx, uint32(start), uint32(end))
		if err != nil {
			return errors.Wrap(err, "find next unprocessed slot")
		}
		if allProcessed {
			return nil
		}

		if err := o.processor.Process(ctx, uint64(next)); err != nil {
			if o.log != nil {
				o.log.WithField("slot", next).WithError(err).Error("slot processing aborted")
			}
			return errors.Wrapf(err, "process slot %d", next)
		}
	}
}
