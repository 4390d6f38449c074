// Package retry implements the default per-branch failure policy: a failed
// stage re-enters itself with logging and exponential backoff, until it
// succeeds or its context is cancelled. Both the epoch and slot processors
// share it for every branch except the ones treated as fatal (attestations,
// epoch-sequence validation).
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

// maxBackoff caps the exponential sleep between re-entries, mirroring
// api/reliable's cap.
const maxBackoff = time.Minute

// Forever calls fn until it succeeds, ctx is cancelled, or fn returns
// indexererr.ErrSlotMissed (a first-class value, not a failure: it returns
// immediately with a nil error). Every other error is logged and retried
// after an exponential backoff.
func Forever(ctx context.Context, log logrus.FieldLogger, stage string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, indexererr.ErrSlotMissed) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if log != nil {
			log.WithField("stage", stage).WithField("attempt", attempt+1).WithError(err).Warn("stage failed, retrying")
		}
		d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
		if d > maxBackoff {
			d = maxBackoff
		}
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
