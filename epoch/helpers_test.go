package epoch

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/reliable"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestBeaconClient(t *testing.T, rt roundTripFunc) *beacon.Client {
	t.Helper()
	u, err := url.Parse("http://localhost:3500")
	require.NoError(t, err)
	ep := &reliable.Endpoint{
		Name:    "primary",
		BaseURL: u,
		HTTP:    &http.Client{Transport: rt},
		Gate:    reliable.NewGate(4, t.Name(), "primary"),
		Retries: 0,
	}
	rc := reliable.New(ep, nil, time.Millisecond, nil)
	return beacon.NewClient(rc, nil)
}

func newMockStore(t *testing.T) (*db.Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return db.NewWithDB(sqlx.NewDb(conn, "postgres"), nil), mock
}

func testBeaconTime() *chaintime.BeaconTime {
	return chaintime.New(chaintime.EthereumConfig(time.Unix(0, 0).UTC(), 0, 0))
}
