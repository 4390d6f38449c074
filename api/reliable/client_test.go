package reliable

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(t *testing.T, name string, retries int) *Endpoint {
	t.Helper()
	u, err := url.Parse("http://" + name)
	require.NoError(t, err)
	return &Endpoint{Name: name, BaseURL: u, Gate: NewGate(2, t.Name(), name), Retries: retries}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	primary := newTestEndpoint(t, "primary-succeed", 2)
	c := New(primary, nil, time.Millisecond, nil)

	calls := 0
	v, err := c.Do(context.Background(), Primary, func(ctx context.Context, ep *Endpoint) (interface{}, error) {
		calls++
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 1, calls)
}

func TestDo_FallsBackToSecondary(t *testing.T) {
	primary := newTestEndpoint(t, "primary-fail", 0)
	secondary := newTestEndpoint(t, "secondary-ok", 0)
	c := New(primary, secondary, time.Millisecond, nil)

	v, err := c.Do(context.Background(), Primary, func(ctx context.Context, ep *Endpoint) (interface{}, error) {
		if ep.Name == "primary-fail" {
			return nil, errors.New("boom")
		}
		return "secondary-value", nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "secondary-value", v)
}

func TestDo_UpstreamUnavailableWhenBothFail(t *testing.T) {
	primary := newTestEndpoint(t, "primary-fail", 0)
	secondary := newTestEndpoint(t, "secondary-fail", 0)
	c := New(primary, secondary, time.Millisecond, nil)

	_, err := c.Do(context.Background(), Primary, func(ctx context.Context, ep *Endpoint) (interface{}, error) {
		return nil, errors.New("boom: " + ep.Name)
	}, nil)
	require.Error(t, err)
}

func TestDo_ErrorHandlerShortCircuits(t *testing.T) {
	primary := newTestEndpoint(t, "primary-404", 3)
	c := New(primary, nil, time.Millisecond, nil)

	calls := 0
	v, err := c.Do(context.Background(), Primary, func(ctx context.Context, ep *Endpoint) (interface{}, error) {
		calls++
		return nil, errors.New("404 not found")
	}, func(err error) (interface{}, bool) {
		return "slot-missed", true
	})
	require.NoError(t, err)
	require.Equal(t, "slot-missed", v)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesBeforeFailing(t *testing.T) {
	primary := newTestEndpoint(t, "primary-retry", 2)
	c := New(primary, nil, time.Millisecond, nil)

	calls := 0
	_, err := c.Do(context.Background(), Primary, func(ctx context.Context, ep *Endpoint) (interface{}, error) {
		calls++
		return nil, errors.New("still failing")
	}, nil)
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestGate_Stats(t *testing.T) {
	g := NewGate(4, "test", "stats")
	require.NoError(t, g.Acquire(context.Background()))
	s := g.Stats()
	require.Equal(t, int64(1), s.Active)
	require.Equal(t, int64(4), s.Capacity)
	g.Release()
	require.Equal(t, int64(0), g.Stats().Active)
}
