package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options are the per-process settings shared by every user's client.
type Options struct {
	BaseURL              string // used for users without their own trading endpoint
	RESTTimeout          time.Duration
	RateLimit            float64 // requests per second, 0 disables limiting; see Client
	Burst                int
	StreamURL            string // without the feed segment
	Feed                 Feed
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Dialer               *websocket.Dialer
}

// Client is the reusable per-user handle: REST access plus a factory for
// stream connections. It holds no sockets itself. Its rate limiter is shared
// by every caller of the same client, so all poll sessions of one user draw
// from a single per-account budget; sessions beyond it get a slower cadence.
type Client struct {
	creds  Credentials
	opts   Options
	rest   *RESTClient
	logger *zap.Logger
}

// NewClient validates the credentials and builds a client.
func NewClient(creds Credentials, opts Options, logger *zap.Logger) (*Client, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}
	if creds.BaseURL == "" {
		creds.BaseURL = opts.BaseURL
	}
	if creds.BaseURL == "" {
		creds.BaseURL = DefaultPaperURL
	}
	u, err := url.Parse(creds.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", creds.BaseURL)
	}
	if opts.Feed == "" {
		opts.Feed = FeedIEX
	}
	if opts.RESTTimeout <= 0 {
		opts.RESTTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		creds:  creds,
		opts:   opts,
		rest:   NewRESTClient(creds, opts.RESTTimeout, limiter),
		logger: logger,
	}, nil
}

func (c *Client) Credentials() Credentials { return c.creds }

func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	return c.rest.GetAccount(ctx)
}

func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	return c.rest.GetPositions(ctx)
}

// NewStream returns a fresh, unconnected stream client using this client's keys.
func (c *Client) NewStream() *StreamClient {
	return NewStreamClient(StreamConfig{
		URL:                  StreamURL(c.opts.StreamURL, c.opts.Feed),
		Credentials:          c.creds,
		MaxReconnectAttempts: c.opts.MaxReconnectAttempts,
		ReconnectDelay:       c.opts.ReconnectDelay,
		Dialer:               c.opts.Dialer,
	}, c.logger)
}
