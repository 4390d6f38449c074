package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/reliable"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
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
	return NewClient(rc, nil)
}

func envelope(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	env := struct {
		Data json.RawMessage `json:"data"`
	}{Data: raw}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func TestParseNodeVersion(t *testing.T) {
	cases := []struct {
		name string
		v    string
		err  error
		nv   *NodeVersion
	}{
		{
			name: "empty string",
			v:    "",
			err:  ErrInvalidNodeVersion,
		},
		{
			name: "Prysm as the version string",
			v:    "Prysm",
			err:  ErrInvalidNodeVersion,
		},
		{
			name: "semver only",
			v:    "v2.0.6",
			err:  ErrInvalidNodeVersion,
		},
		{
			name: "complete version",
			v:    "Prysm/v2.0.6 (linux amd64)",
			nv: &NodeVersion{
				implementation: "Prysm",
				semver:         "v2.0.6",
				systemInfo:     "(linux amd64)",
			},
		},
		{
			name: "nimbus version",
			v:    "Nimbus/v22.4.0-039bec-stateofus",
			nv: &NodeVersion{
				implementation: "Nimbus",
				semver:         "v22.4.0-039bec-stateofus",
				systemInfo:     "",
			},
		},
		{
			name: "teku version",
			v:    "teku/v22.3.2/linux-x86_64/oracle-java-11",
			nv: &NodeVersion{
				implementation: "teku",
				semver:         "v22.3.2",
				systemInfo:     "linux-x86_64/oracle-java-11",
			},
		},
		{
			name: "lighthouse version",
			v:    "Lighthouse/v2.1.1-5f628a7/x86_64-linux",
			nv: &NodeVersion{
				implementation: "Lighthouse",
				semver:         "v2.1.1-5f628a7",
				systemInfo:     "x86_64-linux",
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			nv, err := parseNodeVersion(c.v)
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.nv, nv)
		})
	}
}

func TestFetchNodeVersion(t *testing.T) {
	cl := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, getNodeVersionPath, req.URL.Path)
		body := envelope(t, struct {
			Version string `json:"version"`
		}{Version: "Prysm/v2.0.6 (linux amd64)"})
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(body)),
		}, nil
	})

	nv, err := cl.FetchNodeVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Prysm", nv.implementation)
	require.Equal(t, "v2.0.6", nv.semver)
}
