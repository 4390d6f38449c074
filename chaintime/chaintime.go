// Package chaintime provides pure slot/epoch arithmetic for a beacon chain
// configured by genesis time, slot duration, and epoch length. It performs
// no I/O; the only blocking operation, WaitUntilSlotStart, cooperatively
// suspends the calling goroutine via context and a timer.
package chaintime

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrBeforeGenesis is returned by SlotOf when the given timestamp predates
// the configured genesis time.
var ErrBeforeGenesis = errors.New("chaintime: timestamp before genesis")

// Config holds the chain-specific constants needed for slot/epoch math.
// The Ethereum and Gnosis presets differ in slot duration, epoch length and
// sync-committee period; genesis, lookback and head delay come from the caller.
type Config struct {
	GenesisTime         time.Time
	SlotDuration        time.Duration
	SlotsPerEpoch       uint64
	EpochsPerSyncPeriod uint64
	LookbackSlot        uint64
	DelaySlotsToHead    uint64
}

// EthereumConfig returns the mainnet Ethereum chain-time constants.
func EthereumConfig(genesis time.Time, lookbackSlot, delaySlotsToHead uint64) Config {
	return Config{
		GenesisTime:         genesis,
		SlotDuration:        12 * time.Second,
		SlotsPerEpoch:       32,
		EpochsPerSyncPeriod: 256,
		LookbackSlot:        lookbackSlot,
		DelaySlotsToHead:    delaySlotsToHead,
	}
}

// GnosisConfig returns the Gnosis chain chain-time constants.
func GnosisConfig(genesis time.Time, lookbackSlot, delaySlotsToHead uint64) Config {
	return Config{
		GenesisTime:         genesis,
		SlotDuration:        5 * time.Second,
		SlotsPerEpoch:       16,
		EpochsPerSyncPeriod: 512,
		LookbackSlot:        lookbackSlot,
		DelaySlotsToHead:    delaySlotsToHead,
	}
}

// BeaconTime is the pure time/slot/epoch calculator. It is safe for
// concurrent use: it holds no mutable state beyond an injected clock
// function (overridable by tests).
type BeaconTime struct {
	cfg Config
	now func() time.Time
}

// New constructs a BeaconTime from the given configuration.
func New(cfg Config) *BeaconTime {
	return &BeaconTime{cfg: cfg, now: time.Now}
}

// withClock overrides the clock function; used by tests only.
func (b *BeaconTime) withClock(now func() time.Time) *BeaconTime {
	b.now = now
	return b
}

// SlotOf returns the slot active at timestamp ts.
func (b *BeaconTime) SlotOf(ts time.Time) (uint64, error) {
	if ts.Before(b.cfg.GenesisTime) {
		return 0, ErrBeforeGenesis
	}
	d := ts.Sub(b.cfg.GenesisTime)
	return uint64(d / b.cfg.SlotDuration), nil
}

// TimeOf returns the start time of the given slot.
func (b *BeaconTime) TimeOf(slot uint64) time.Time {
	return b.cfg.GenesisTime.Add(time.Duration(slot) * b.cfg.SlotDuration)
}

// EpochOf returns the epoch containing the given slot.
func (b *BeaconTime) EpochOf(slot uint64) uint64 {
	return slot / b.cfg.SlotsPerEpoch
}

// EpochSlots returns the inclusive [start, end] slot range of an epoch.
func (b *BeaconTime) EpochSlots(epoch uint64) (start, end uint64) {
	start = epoch * b.cfg.SlotsPerEpoch
	end = start + b.cfg.SlotsPerEpoch - 1
	return start, end
}

// StartSlot returns the first slot of an epoch.
func (b *BeaconTime) StartSlot(epoch uint64) uint64 {
	return epoch * b.cfg.SlotsPerEpoch
}

// EndSlot returns the last slot of an epoch.
func (b *BeaconTime) EndSlot(epoch uint64) uint64 {
	_, end := b.EpochSlots(epoch)
	return end
}

// SyncPeriodStart returns the first epoch of the sync-committee period that
// contains the given epoch.
func (b *BeaconTime) SyncPeriodStart(epoch uint64) uint64 {
	return (epoch / b.cfg.EpochsPerSyncPeriod) * b.cfg.EpochsPerSyncPeriod
}

// CurrentSlot returns the slot corresponding to the current wall-clock time.
// It never returns an error: if called before genesis (only possible in
// tests/misconfiguration) it returns 0.
func (b *BeaconTime) CurrentSlot() uint64 {
	s, err := b.SlotOf(b.now())
	if err != nil {
		return 0
	}
	return s
}

// CurrentEpoch returns EpochOf(CurrentSlot()).
func (b *BeaconTime) CurrentEpoch() uint64 {
	return b.EpochOf(b.CurrentSlot())
}

// HasSlotStarted reports whether slot s is ready to be fetched, i.e. whether
// now is at or past the effective start time of s shifted by the configured
// head-delay.
func (b *BeaconTime) HasSlotStarted(s uint64) bool {
	effective := b.TimeOf(s + b.cfg.DelaySlotsToHead)
	return !b.now().Before(effective)
}

// HasEpochEnded reports whether every slot of epoch e is ready, i.e. whether
// the first slot of the following epoch has started.
func (b *BeaconTime) HasEpochEnded(e uint64) bool {
	_, end := b.EpochSlots(e)
	return b.HasSlotStarted(end + 1)
}

// LookbackSlot returns the configured lowest in-scope slot.
func (b *BeaconTime) LookbackSlot() uint64 {
	return b.cfg.LookbackSlot
}

// LookbackEpoch returns floor(lookbackSlot / slotsPerEpoch).
func (b *BeaconTime) LookbackEpoch() uint64 {
	return b.EpochOf(b.cfg.LookbackSlot)
}

// SlotDuration exposes the configured slot duration, used by callers that
// need to sleep for one slot (the execution client's fallback wait, as wired
// in cmd/indexer, and the orchestrator's idle poll).
func (b *BeaconTime) SlotDuration() time.Duration {
	return b.cfg.SlotDuration
}

// SlotsPerEpoch exposes the configured epoch length.
func (b *BeaconTime) SlotsPerEpoch() uint64 {
	return b.cfg.SlotsPerEpoch
}

// EpochsPerSyncPeriod exposes the configured sync-committee period length.
func (b *BeaconTime) EpochsPerSyncPeriod() uint64 {
	return b.cfg.EpochsPerSyncPeriod
}

// WaitUntilSlotStart cooperatively suspends until slot s is ready per
// HasSlotStarted, or until ctx is cancelled. It returns immediately if the
// slot is already ready.
func (b *BeaconTime) WaitUntilSlotStart(ctx context.Context, s uint64) error {
	if b.HasSlotStarted(s) {
		return nil
	}
	effective := b.TimeOf(s + b.cfg.DelaySlotsToHead)
	d := effective.Sub(b.now())
	if d < 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HourOf floors a timestamp down to the start of its UTC hour, the bucket
// key for hourly_validator_stats.
func HourOf(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}
