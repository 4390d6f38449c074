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

// Every duty in the upstream response must result in a
// slots.proposer_index upsert matching that duty's validator_index.
func TestFetchProposerDuties_SetsProposerIndex(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM epochs WHERE epoch = \$1`).
		WithArgs(uint32(200)).
		WillReturnRows(sqlmock.NewRows([]string{"epoch", "validator_proposer_duties_fetched"}).AddRow(200, false))

	duties := []struct{ slot, vIdx uint32 }{
		{6400000, 1001},
		{6400001, 1002},
		{6400031, 1032},
	}
	for _, d := range duties {
		mock.ExpectExec(`INSERT INTO slots \(slot, proposer_index\)`).
			WithArgs(d.slot, d.vIdx).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	mock.ExpectExec(`UPDATE epochs SET validator_proposer_duties_fetched = true WHERE epoch = \$1`).
		WithArgs(uint32(200)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"data":[
		{"pubkey":"0xaa","validator_index":"1001","slot":"6400000"},
		{"pubkey":"0xbb","validator_index":"1002","slot":"6400001"},
		{"pubkey":"0xcc","validator_index":"1032","slot":"6400031"}
	]}`
	beaconClient := newTestBeaconClient(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})

	ctrl := NewController(beaconClient, store, testBeaconTime(), nil)
	err := ctrl.FetchProposerDuties(context.Background(), 200)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
