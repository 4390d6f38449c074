package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &Store{db: sqlx.NewDb(conn, "postgres"), log: logrus.New()}, mock
}

func TestCreateEpochs_RejectsNonConsecutive(t *testing.T) {
	s, _ := newMockStore(t)
	err := s.CreateEpochs(context.Background(), []uint32{10, 12}, 10)
	assert.ErrorIs(t, err, indexererr.ErrInvalidEpochSequence)
}

func TestCreateEpochs_RejectsWrongStart(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(99))

	err := s.CreateEpochs(context.Background(), []uint32{5}, 0)
	assert.ErrorIs(t, err, indexererr.ErrInvalidEpochSequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEpochs_InsertsAtBaselineWhenEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO epochs`).WithArgs(uint32(7)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.CreateEpochs(context.Background(), []uint32{7}, 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEpochProcessed_RefusesWhenFlagsIncomplete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	row := sqlmock.NewRows([]string{
		"epoch", "processed", "committees_fetched", "sync_committees_fetched",
		"validator_proposer_duties_fetched", "validators_balances_fetched",
		"validators_activation_fetched", "rewards_fetched", "all_slots_processed",
	}).AddRow(100, false, true, true, true, true, true, false, true)
	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1 FOR UPDATE`).WillReturnRows(row)
	mock.ExpectRollback()

	err := s.MarkEpochProcessed(context.Background(), 100, 3200, 3231)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldCommittees_OnlyDeletesBoundedKnownDelays(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM committees\s+WHERE slot < \$1 AND attestation_delay IS NOT NULL AND attestation_delay <= \$2`).
		WithArgs(uint64(1000), int16(32)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := s.CleanupOldCommittees(context.Background(), 1000, 32)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFoldConsensusReward_AdditiveUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	hour := time.Date(2025, 10, 21, 14, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO slots`).
		WithArgs(uint32(3200), int64(12345)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare(`INSERT INTO hourly_validator_stats`)
	prep.ExpectExec().
		WithArgs(hour, uint32(549417), int64(12345), int64(0), int16(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		if err := s.SetSlotConsensusReward(context.Background(), tx, 3200, 12345); err != nil {
			return err
		}
		return s.FoldConsensusReward(context.Background(), tx, hour, 549417, 12345)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEpochRewards_ClRewardsSums(t *testing.T) {
	r := models.EpochRewards{Head: 87524, Target: 163524, Source: 87929, Inactivity: 0}
	assert.EqualValues(t, 338977, r.ClRewards())
}

// The delay update may only ever lower a stored value: the WHERE clause
// matches rows whose delay is NULL or strictly greater than the incoming
// one, so a later, slower inclusion never overwrites an earlier one.
func TestUpdateAttestationDelays_FloorPredicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE committees\s+SET attestation_delay = \$4\s+WHERE slot = \$1 AND committee_index = \$2 AND aggregation_bits_index = \$3\s+AND \(attestation_delay IS NULL OR attestation_delay > \$4\)`)
	prep.ExpectExec().
		WithArgs(uint32(3200), uint16(5), uint16(17), int16(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateAttestationDelays(context.Background(), []AttestationDelayUpdate{
		{Slot: 3200, CommitteeIndex: 5, AggregationBitsIndex: 17, Delay: 0},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAttestationDelays_EmptyIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	require.NoError(t, s.UpdateAttestationDelays(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextUnprocessedSlot(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT min\(s\) FROM generate_series`).
		WithArgs(uint32(3200), uint32(3231)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(3205))

	next, all, err := s.NextUnprocessedSlot(context.Background(), 3200, 3231)
	require.NoError(t, err)
	assert.False(t, all)
	assert.EqualValues(t, 3205, next)
}

func TestNextUnprocessedSlot_AllProcessed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT min\(s\) FROM generate_series`).
		WithArgs(uint32(3200), uint32(3231)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	_, all, err := s.NextUnprocessedSlot(context.Background(), 3200, 3231)
	require.NoError(t, err)
	assert.True(t, all)
}
