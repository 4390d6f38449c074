package epoch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// Balances for every non-terminal validator are fetched at the epoch start
// slot and upserted in one transaction; the flag flip follows once that
// transaction has committed.
func TestFetchValidatorBalances_UpsertsAndFlips(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnRows(sqlmock.NewRows([]string{"epoch", "validators_balances_fetched"}).AddRow(100, false))

	mock.ExpectQuery(`SELECT index FROM validators\s+WHERE status NOT IN`).
		WillReturnRows(sqlmock.NewRows([]string{"index"}).AddRow(549417).AddRow(549418))

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO validators \(index, balance\) VALUES \(\$1, \$2\)`)
	prep.ExpectExec().
		WithArgs(uint32(549417), uint64(32_004_321_765)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(uint32(549418), uint64(31_999_874_210)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE epochs SET validators_balances_fetched = true WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"data":[
		{"index":"549417","balance":"32004321765"},
		{"index":"549418","balance":"31999874210"}
	]}`
	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})

	ctrl := NewController(beaconClient, store, testBeaconTime(), nil)
	require.NoError(t, ctrl.FetchValidatorBalances(context.Background(), 100))
	require.NoError(t, mock.ExpectationsWereMet())
}

// No non-terminal validators means no upstream call, only the flag flip.
func TestFetchValidatorBalances_NoValidators(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnRows(sqlmock.NewRows([]string{"epoch", "validators_balances_fetched"}).AddRow(100, false))

	mock.ExpectQuery(`SELECT index FROM validators\s+WHERE status NOT IN`).
		WillReturnRows(sqlmock.NewRows([]string{"index"}))

	mock.ExpectExec(`UPDATE epochs SET validators_balances_fetched = true WHERE epoch = \$1`).
		WithArgs(uint32(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected upstream call: %s", req.URL.String())
		return nil, nil
	})

	ctrl := NewController(beaconClient, store, testBeaconTime(), nil)
	require.NoError(t, ctrl.FetchValidatorBalances(context.Background(), 100))
	require.NoError(t, mock.ExpectationsWereMet())
}
