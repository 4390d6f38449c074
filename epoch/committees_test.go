package epoch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
)

// Committees referencing slots below the lookback boundary are dropped, and
// the surviving ones land as one slot-counts upsert plus a temp-table bulk
// load, flag flip co-committed.
func TestFetchCommittees_FiltersLookbackAndBulkLoads(t *testing.T) {
	store, mock := newMockStore(t)
	bt := chaintime.New(chaintime.EthereumConfig(time.Unix(0, 0).UTC(), 3202, 0))

	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnRows(sqlmock.NewRows([]string{"epoch", "committees_fetched"}).AddRow(100, false))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO slots \(slot, committees_count_in_slot\)`).
		WithArgs(uint32(3210), []byte(`[2,1]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`CREATE TEMP TABLE tmp_committees`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO tmp_committees`).
		WithArgs(
			uint32(3210), uint16(0), uint16(0), uint32(7),
			uint32(3210), uint16(0), uint16(1), uint32(8),
			uint32(3210), uint16(1), uint16(0), uint32(9),
		).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO committees`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE epochs SET committees_fetched = true WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := `{"data":[
		{"index":"0","slot":"3201","validators":["1","2"]},
		{"index":"0","slot":"3210","validators":["7","8"]},
		{"index":"1","slot":"3210","validators":["9"]}
	]}`
	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})

	ctrl := NewController(beaconClient, store, bt, nil)
	require.NoError(t, ctrl.FetchCommittees(context.Background(), 100))
	require.NoError(t, mock.ExpectationsWereMet())
}

// An epoch whose committees are already fetched makes no upstream call.
func TestFetchCommittees_AlreadyFetchedIsNoop(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnRows(sqlmock.NewRows([]string{"epoch", "committees_fetched"}).AddRow(100, true))

	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected upstream call: %s", req.URL.String())
		return nil, nil
	})

	ctrl := NewController(beaconClient, store, testBeaconTime(), nil)
	require.NoError(t, ctrl.FetchCommittees(context.Background(), 100))
	require.NoError(t, mock.ExpectationsWereMet())
}
