package reliable

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

// NodeType selects which configured endpoint a call prefers to start on.
// Low-latency head reads start on the secondary (full) node and fall back
// to the primary (archive); historical reads go the other way.
type NodeType string

const (
	Primary   NodeType = "primary"
	Secondary NodeType = "secondary"
)

// maxBackoff caps the exponential sleep between retry attempts.
const maxBackoff = time.Minute

// Endpoint is one of the two URLs a Client can target, with its own
// concurrency gate and retry budget.
type Endpoint struct {
	Name    string
	BaseURL *url.URL
	HTTP    *http.Client
	Gate    *Gate
	Retries int
}

// AttemptFunc performs one request against ep and returns its decoded
// result.
type AttemptFunc func(ctx context.Context, ep *Endpoint) (interface{}, error)

// ErrorHandler inspects an attempt's error and, when it returns ok=true,
// short-circuits the retry loop with its own value (e.g. a slot-missed
// sentinel for an expected 404) instead of continuing to retry.
type ErrorHandler func(err error) (value interface{}, ok bool)

// Client is the dual-endpoint request executor shared by every typed API
// façade in the process.
type Client struct {
	primary   *Endpoint
	secondary *Endpoint
	baseDelay time.Duration
	log       logrus.FieldLogger
}

// New builds a Client. secondary may be nil, in which case all calls use
// only the primary endpoint.
func New(primary, secondary *Endpoint, baseDelay time.Duration, log logrus.FieldLogger) *Client {
	return &Client{primary: primary, secondary: secondary, baseDelay: baseDelay, log: log}
}

// Do executes attempt against the preferred endpoint first, falling back to
// the other endpoint if every attempt on the preferred one fails. errorHandler
// may be nil.
func (c *Client) Do(ctx context.Context, preferred NodeType, attempt AttemptFunc, errorHandler ErrorHandler) (interface{}, error) {
	order := c.order(preferred)

	var lastErr error
	for _, ep := range order {
		if ep == nil {
			continue
		}
		v, handled, err := c.runOnEndpoint(ctx, ep, attempt, errorHandler)
		if handled {
			return v, err
		}
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoint configured")
	}
	return nil, indexererr.UpstreamUnavailable(lastErr)
}

func (c *Client) order(preferred NodeType) []*Endpoint {
	if preferred == Secondary {
		return []*Endpoint{c.secondary, c.primary}
	}
	return []*Endpoint{c.primary, c.secondary}
}

// runOnEndpoint drives the retry loop for one endpoint. handled=true means
// the errorHandler fired and the caller should return (v, err) as-is without
// trying the other endpoint.
func (c *Client) runOnEndpoint(ctx context.Context, ep *Endpoint, attempt AttemptFunc, errorHandler ErrorHandler) (v interface{}, handled bool, err error) {
	maxAttempts := ep.Retries + 1
	for i := 0; i < maxAttempts; i++ {
		if err := ep.Gate.Acquire(ctx); err != nil {
			return nil, false, err
		}
		v, attemptErr := attempt(ctx, ep)
		ep.Gate.Release()

		if attemptErr == nil {
			return v, false, nil
		}

		if errorHandler != nil {
			if hv, ok := errorHandler(attemptErr); ok {
				return hv, true, nil
			}
		}

		if c.log != nil {
			c.log.WithFields(logrus.Fields{"endpoint": ep.Name, "attempt": i + 1}).WithError(attemptErr).Warn("request attempt failed")
		}

		err = attemptErr
		if i < maxAttempts-1 {
			if sleepErr := c.sleep(ctx, i); sleepErr != nil {
				return nil, false, sleepErr
			}
		}
	}
	return nil, false, err
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	d := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
