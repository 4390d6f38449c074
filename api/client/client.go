// Package client provides a base HTTP client shared by the beacon and
// execution API clients: hostname normalization, bearer-token auth and a
// plain net/http.Client with sane defaults.
package client

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMalformedHostname is returned when NewClient is given a host string it
// cannot turn into a URL with a host: a scheme-less host without a port, an
// unparsable URL, or a URL with an empty host.
var ErrMalformedHostname = errors.New("no valid host or base URL found")

// DefaultTimeout is used for Client.hc when no WithTimeout option is given.
const DefaultTimeout = 30 * time.Second

// Client is a minimal HTTP client wrapper: a base URL, an *http.Client and
// an optional bearer token forwarded on every request.
type Client struct {
	hc      *http.Client
	baseURL *url.URL
	token   string
}

// Opt is a functional option for NewClient.
type Opt func(*Client)

// WithAuthenticationToken sets the bearer token sent as an Authorization
// header on every request made through this client.
func WithAuthenticationToken(token string) Opt {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout overrides the default http.Client timeout.
func WithTimeout(d time.Duration) Opt {
	return func(c *Client) {
		c.hc.Timeout = d
	}
}

// WithHTTPClient overrides the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) {
		c.hc = hc
	}
}

// NewClient builds a Client around host, which may or may not include a
// scheme (defaulting to http if omitted). A host without a scheme must
// carry a port ("localhost:3500"); otherwise ErrMalformedHostname is
// returned.
func NewClient(host string, opts ...Opt) (*Client, error) {
	u, err := urlForHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		hc:      &http.Client{Timeout: DefaultTimeout},
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func urlForHost(host string) (*url.URL, error) {
	if !strings.Contains(host, "://") {
		if !strings.Contains(host, ":") {
			return nil, ErrMalformedHostname
		}
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedHostname, err.Error())
	}
	if u.Host == "" {
		return nil, ErrMalformedHostname
	}
	return u, nil
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() *url.URL {
	cpy := *c.baseURL
	return &cpy
}

// Token returns the bearer token configured via WithAuthenticationToken, or
// the empty string if none was set.
func (c *Client) Token() string {
	return c.token
}

// HTTP returns the underlying *http.Client.
func (c *Client) HTTP() *http.Client {
	return c.hc
}

// NewRequest builds an *http.Request against path (which may carry a query
// string), relative to BaseURL, with the Authorization header set when a
// token is configured.
func (c *Client) NewRequest(method, path string, body *strings.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := c.baseURL.ResolveReference(ref)
	var b *strings.Reader
	if body == nil {
		b = strings.NewReader("")
	} else {
		b = body
	}
	req, err := http.NewRequest(method, u.String(), b)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}
