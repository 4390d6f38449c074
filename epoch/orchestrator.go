package epoch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

// retentionEpochs is the committee retention horizon: cleanup targets rows
// more than this many epochs behind the epoch just marked processed.
const retentionEpochs = 3

// maxAttestationDelay is the highest delay the cleanup job will delete;
// rows above it (and NULL-delay rows) survive retention as signals of
// late or missing attestations. 32 slots is the inclusion window an
// attestation remains valid for.
const maxAttestationDelay = 32

// Orchestrator polls for the next unprocessed epoch and drives it to
// completion one at a time. It never runs two epoch processors
// concurrently.
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

// Run loops until ctx is cancelled: it finds the earliest unprocessed
// epoch, waits until it is admissible (currentEpoch >= epoch-1), processes
// it, and sleeps slotDuration/3 whenever there is nothing to do.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		epoch, ok, err := o.store.GetMinEpochToProcess(ctx)
		if err != nil {
			if o.log != nil {
				o.log.WithError(err).Warn("failed to read next epoch to process")
			}
			if !sleep(ctx, o.bt.SlotDuration()/3) {
				return ctx.Err()
			}
			continue
		}
		if !ok {
			if !sleep(ctx, o.bt.SlotDuration()/3) {
				return ctx.Err()
			}
			continue
		}

		for o.bt.CurrentEpoch()+1 < uint64(epoch) {
			if !sleep(ctx, o.bt.SlotDuration()/3) {
				return ctx.Err()
			}
		}

		if err := o.processor.Process(ctx, uint64(epoch)); err != nil {
			if o.log != nil {
				o.log.WithField("epoch", epoch).WithError(err).Error("epoch processing aborted")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		o.cleanup(ctx, uint64(epoch))
	}
}

// cleanup runs CleanupOldCommittees after an epoch completes; failures are
// logged, not fatal. It never participates in any flag's dependency graph.
func (o *Orchestrator) cleanup(ctx context.Context, epoch uint64) {
	startSlot, _ := o.bt.EpochSlots(epoch)
	if startSlot < retentionEpochs*o.bt.SlotsPerEpoch() {
		return
	}
	beforeSlot := startSlot - retentionEpochs*o.bt.SlotsPerEpoch()
	n, err := o.store.CleanupOldCommittees(ctx, beforeSlot, maxAttestationDelay)
	if err != nil {
		if o.log != nil {
			o.log.WithError(err).Warn("committee cleanup failed")
		}
		return
	}
	if o.log != nil && n > 0 {
		o.log.WithField("rows", n).WithField("before_slot", beforeSlot).Info("cleaned up old committees")
	}
}

// sleep waits for d or ctx cancellation, returning false in the latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
