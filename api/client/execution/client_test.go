package execution

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apiclient "github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newHTTPClient(t *testing.T, rt roundTripFunc) *apiclient.Client {
	t.Helper()
	cl, err := apiclient.NewClient("http://localhost:4000", apiclient.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	return cl
}

func TestGetBlock_PrefersBlockscout(t *testing.T) {
	bs := newHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/api/v2/blocks/100", req.URL.Path)
		body := `{
			"miner": {"hash": "0xminer"},
			"rewards": [{"type": "Miner Reward", "reward": "2000000000000000000"}],
			"timestamp": "2025-10-21T14:00:00.000000Z",
			"height": "100"
		}`
		return httpOK(body), nil
	})
	c := New(bs, nil, nil)

	reward, err := c.GetBlock(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, "0xminer", reward.Address)
	require.Equal(t, "2000000000000000000", reward.Amount.String())
	require.Equal(t, uint64(100), reward.BlockNumber)
}

func TestGetBlock_FallsBackToEtherscan(t *testing.T) {
	bs := newHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		return httpStatus(http.StatusInternalServerError, "boom"), nil
	})
	es := newHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		require.Contains(t, req.URL.RawQuery, "apikey=secret")
		body := `{"status":"1","result":{"blockMiner":"0xminer2","timeStamp":"1760450400","blockReward":"3000000000000000000","blockNumber":"100"}}`
		return httpOK(body), nil
	})
	c := New(bs, nil, nil, WithEtherscan(es, nil, "secret"), WithWaitBetween(time.Millisecond))

	reward, err := c.GetBlock(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, "0xminer2", reward.Address)
	require.Equal(t, "3000000000000000000", reward.Amount.String())
	require.Equal(t, time.Date(2025, 10, 14, 14, 0, 0, 0, time.UTC), reward.Timestamp)
}

func TestGetBlock_NoFallbackConfigured(t *testing.T) {
	bs := newHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		return httpStatus(http.StatusInternalServerError, "boom"), nil
	})
	c := New(bs, nil, nil)

	_, err := c.GetBlock(context.Background(), 100)
	require.Error(t, err)
}
