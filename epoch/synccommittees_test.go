package epoch

import (
	"context"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// When a stored sync-committee period already covers the epoch,
// FetchSyncCommittees must flip the flag without making any upstream
// beacon call.
func TestFetchSyncCommittees_ReuseSkipsUpstreamCall(t *testing.T) {
	store, mock := newMockStore(t)

	epochRows := sqlmock.NewRows([]string{"epoch", "sync_committees_fetched"}).
		AddRow(100, false)
	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnRows(epochRows)

	mock.ExpectQuery(`SELECT count\(\*\) FROM sync_committees`).
		WithArgs(uint32(100)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectExec(`UPDATE epochs SET sync_committees_fetched = true WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected upstream call on reuse path: %s", req.URL.String())
		return nil, nil
	})

	ctrl := NewController(beaconClient, store, testBeaconTime(), nil)
	err := ctrl.FetchSyncCommittees(context.Background(), 100)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
