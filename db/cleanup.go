package db

import (
	"context"

	"github.com/pkg/errors"
)

// CleanupOldCommittees deletes committee rows older than beforeSlot whose
// attestation delay is known and within maxDelay. Rows with a NULL delay
// are never deleted: a NULL means the validator was never observed
// attesting for that seat, which is itself a signal worth keeping, not
// cleanup debt. Rows whose delay exceeds maxDelay are kept too, as
// outliers worth inspecting. Called by the epoch orchestrator after an
// epoch is marked processed; it never participates in any flag's
// dependency graph.
func (s *Store) CleanupOldCommittees(ctx context.Context, beforeSlot uint64, maxDelay int16) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM committees
		WHERE slot < $1 AND attestation_delay IS NOT NULL AND attestation_delay <= $2
	`, beforeSlot, maxDelay)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up old committees")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read rows affected by cleanup")
	}
	return n, nil
}
