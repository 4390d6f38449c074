package epoch

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// A partially-full window is topped up with consecutive rows starting at
// max(epoch)+1.
func TestCreatorTick_RefillsWindow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM epochs WHERE processed = false`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(104))

	// CreateEpochs re-reads max(epoch) for its own sequence validation.
	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(104))
	mock.ExpectBegin()
	for _, e := range []uint32{105, 106, 107} {
		mock.ExpectExec(`INSERT INTO epochs \(epoch\) VALUES \(\$1\)`).
			WithArgs(e).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	c := NewCreator(store, testBeaconTime(), nil)
	c.Tick(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}

// A full window creates nothing.
func TestCreatorTick_FullWindowIsNoop(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM epochs WHERE processed = false`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(DefaultMaxUnprocessedEpochs))

	c := NewCreator(store, testBeaconTime(), nil)
	c.Tick(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}

// An empty table starts the sequence at the lookback epoch.
func TestCreatorTick_EmptyTableStartsAtLookback(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM epochs WHERE processed = false`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	mock.ExpectQuery(`SELECT max\(epoch\) FROM epochs`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	for _, e := range []uint32{0, 1, 2, 3, 4} {
		mock.ExpectExec(`INSERT INTO epochs \(epoch\) VALUES \(\$1\)`).
			WithArgs(e).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	c := NewCreator(store, testBeaconTime(), nil)
	c.Tick(context.Background())
	require.NoError(t, mock.ExpectationsWereMet())
}
