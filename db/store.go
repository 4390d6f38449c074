// Package db is the storage layer: transactional bulk writes, idempotent
// upserts, and the hourly reward fold, all against a PostgreSQL-compatible
// database. Every write that crosses more than one table, or that pairs a
// progress-flag flip with data rows, runs inside one bounded transaction.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

// TxTimeout bounds every transaction opened by this package.
const TxTimeout = 3 * time.Minute

// maxBindVars caps the rows sent per bulk statement, keeping the
// bind-variable count under Postgres' per-statement limit.
const maxBindVars = 30000

// Store wraps a *sqlx.DB with the transaction and bulk-load helpers every
// other file in this package builds on.
type Store struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// New opens a connection pool against databaseURL ("postgres://...").
func New(databaseURL string, log logrus.FieldLogger) (*Store, error) {
	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return &Store{db: conn, log: log}, nil
}

// NewWithDB builds a Store around an already-open *sqlx.DB, letting callers
// outside this package (epoch/slot tests, sqlmock-backed fixtures) inject a
// connection without a real Postgres dial.
func NewWithDB(conn *sqlx.DB, log logrus.FieldLogger) *Store {
	return &Store{db: conn, log: log}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction bounded by TxTimeout, rolling back on
// any error (including a panic re-thrown after rollback) and committing
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, TxTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer rollback(tx, s.log)

	if err := fn(tx); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapTxError(errors.Wrap(err, "failed to commit transaction"))
	}
	return nil
}

// rollback is a best-effort rollback for the deferred path; sql.ErrTxDone
// means the transaction was already committed and is not an error.
func rollback(tx *sqlx.Tx, log logrus.FieldLogger) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.WithError(err).Warn("failed to roll back transaction")
	}
}

// mapTxError maps a transaction that exceeded its deadline to
// indexererr.ErrDBTimeout so callers can branch with errors.Is; every other
// error is returned unchanged.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(indexererr.ErrDBTimeout, err.Error())
	}
	return err
}

// chunk splits ids into batches no larger than n, preserving order.
func chunk(ids []uint32, n int) [][]uint32 {
	if n <= 0 {
		n = len(ids)
	}
	var out [][]uint32
	for len(ids) > 0 {
		end := n
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[:end])
		ids = ids[end:]
	}
	return out
}
