package epoch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

// DefaultMaxUnprocessedEpochs is the default pre-created epoch window size.
const DefaultMaxUnprocessedEpochs = 5

// Creator maintains a bounded window of unprocessed epoch rows ahead of the
// orchestrator. It is meant to be driven by async.RunEvery.
type Creator struct {
	store                *db.Store
	bt                    *chaintime.BeaconTime
	log                   logrus.FieldLogger
	maxUnprocessedEpochs int
}

// NewCreator builds a Creator with the default window size; override it via
// WithMaxUnprocessedEpochs.
func NewCreator(store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger) *Creator {
	return &Creator{store: store, bt: bt, log: log, maxUnprocessedEpochs: DefaultMaxUnprocessedEpochs}
}

// WithMaxUnprocessedEpochs overrides the window size.
func (c *Creator) WithMaxUnprocessedEpochs(n int) *Creator {
	c.maxUnprocessedEpochs = n
	return c
}

// Tick is one creator iteration: if fewer than maxUnprocessedEpochs rows
// are pending, create enough new consecutive rows to refill the window.
// Errors are logged, never returned, so a caller driving this via
// async.RunEvery never needs its own recovery logic.
func (c *Creator) Tick(ctx context.Context) {
	n, err := c.store.CountUnprocessedEpochs(ctx)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("epoch creator: failed to count unprocessed epochs")
		}
		return
	}
	if n >= c.maxUnprocessedEpochs {
		return
	}

	maxExisting, ok, err := c.store.MaxEpoch(ctx)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("epoch creator: failed to read max epoch")
		}
		return
	}

	start := c.bt.LookbackEpoch()
	if ok {
		start = uint64(maxExisting) + 1
	}

	want := c.maxUnprocessedEpochs - n
	epochs := make([]uint32, 0, want)
	for i := 0; i < want; i++ {
		epochs = append(epochs, uint32(start)+uint32(i))
	}

	if err := c.store.CreateEpochs(ctx, epochs, uint32(c.bt.LookbackEpoch())); err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("epoch creator: failed to create epochs")
		}
	}
}
