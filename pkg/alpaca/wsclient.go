package alpaca

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// State is the lifecycle state of one StreamClient.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthPending
	StateAuthenticated
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handlers receive decoded stream events. They run on the client's read
// goroutine and must not block.
type Handlers struct {
	OnAuthenticated func()
	OnError         func(error)
	OnTrade         func(Trade)
	OnQuote         func(Quote)
	OnBar           func(Bar)
}

// StreamConfig configures a StreamClient.
type StreamConfig struct {
	URL                  string
	Credentials          Credentials
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Dialer               *websocket.Dialer
}

// StreamClient owns one upstream market data socket: dial, authenticate,
// replay subscriptions, demultiplex and reconnect with a fixed delay.
type StreamClient struct {
	url         string
	creds       Credentials
	maxAttempts int
	delay       *backoff.ConstantBackOff
	dialer      *websocket.Dialer
	subs        *Reconciler
	logger      *zap.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	attempts int
	handlers Handlers
	running  bool
	stopping bool // Disconnect called, loop not yet exited
	cancel   context.CancelFunc
	done     chan struct{}
	err      error

	writeMu sync.Mutex
}

func NewStreamClient(cfg StreamConfig, logger *zap.Logger) *StreamClient {
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	done := make(chan struct{})
	close(done)

	return &StreamClient{
		url:         cfg.URL,
		creds:       cfg.Credentials,
		maxAttempts: cfg.MaxReconnectAttempts,
		delay:       backoff.NewConstantBackOff(cfg.ReconnectDelay),
		dialer:      cfg.Dialer,
		subs:        NewReconciler(),
		logger:      logger.With(zap.String("stream_url", cfg.URL)),
		done:        done,
	}
}

// SetHandlers replaces the event handlers.
func (c *StreamClient) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// Connect starts the connection loop and returns without waiting for the
// handshake. Calling Connect on a running client is a no-op. After Disconnect
// it waits for the previous loop to exit and starts a new one, so it must not
// be called from a handler in that case.
func (c *StreamClient) Connect(ctx context.Context) error {
	if !c.creds.Valid() {
		return ErrMissingCredentials
	}

	c.mu.Lock()
	if c.running && c.stopping {
		prev := c.done
		c.mu.Unlock()
		<-prev
		c.mu.Lock()
	}
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.stopping = false
	c.cancel = cancel
	c.done = make(chan struct{})
	c.err = nil
	c.attempts = 0
	c.delay.Reset()

	go c.run(runCtx, c.done)
	return nil
}

// Disconnect closes the socket and stops reconnecting. It does not wait for
// the loop to exit; use Done for that.
func (c *StreamClient) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.stopping = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
	}
	cancel()
	c.subs.Reset()
}

// Done is closed when the connection loop has exited.
func (c *StreamClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the terminal error of the last run, nil after a requested Disconnect.
func (c *StreamClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *StreamClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts since the last successful auth.
func (c *StreamClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *StreamClient) Desired() Subscriptions   { return c.subs.Desired() }
func (c *StreamClient) Confirmed() Subscriptions { return c.subs.Confirmed() }

// Subscribe merges the symbols into the desired set and, when authenticated,
// sends them right away. Before authentication the symbols are only recorded
// and replayed once the handshake completes.
func (c *StreamClient) Subscribe(trades, quotes, bars []string) error {
	s := Subscriptions{Trades: trades, Quotes: quotes, Bars: bars}
	if s.Empty() {
		return nil
	}
	c.subs.SetDesired(s)

	conn := c.authenticatedConn()
	if conn == nil {
		return nil
	}
	return c.writeJSON(conn, newSubscriptionMessage("subscribe", s))
}

// Unsubscribe is a no-op unless authenticated.
func (c *StreamClient) Unsubscribe(trades, quotes, bars []string) error {
	s := Subscriptions{Trades: trades, Quotes: quotes, Bars: bars}
	conn := c.authenticatedConn()
	if conn == nil || s.Empty() {
		return nil
	}
	c.subs.Remove(s)
	return c.writeJSON(conn, newSubscriptionMessage("unsubscribe", s))
}

func (c *StreamClient) authenticatedConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return nil
	}
	return c.conn
}

func (c *StreamClient) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := c.session(ctx)
		c.subs.Reset()

		if ctx.Err() != nil {
			c.finish(nil)
			c.logger.Info("stream disconnected")
			return
		}

		if errors.Is(err, ErrUnauthorized) {
			c.logger.Error("stream authentication failed", zap.Error(err))
			c.fail(err)
			return
		}

		c.mu.Lock()
		if c.attempts >= c.maxAttempts {
			c.mu.Unlock()
			exhausted := fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, c.maxAttempts, err)
			c.logger.Error("stream reconnect budget exhausted", zap.Error(err))
			c.fail(exhausted)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.state = StateDisconnected
		c.mu.Unlock()

		wait := c.delay.NextBackOff()
		c.logger.Warn("stream closed, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.finish(nil)
			c.logger.Info("stream disconnected")
			return
		case <-timer.C:
		}
	}
}

// session dials, authenticates and reads until the socket fails.
func (c *StreamClient) session(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.mu.Lock()
	c.conn = conn
	if c.state == StateConnecting {
		c.state = StateAuthPending
	}
	c.mu.Unlock()
	c.logger.Info("stream connected")

	auth := authMessage{Action: "auth", Key: c.creds.KeyID, Secret: c.creds.SecretKey}
	if err := c.writeJSON(conn, auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		events, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("frame", data))
			continue
		}
		for _, ev := range events {
			if err := c.dispatch(conn, ev); err != nil {
				return err
			}
		}
	}
}

func (c *StreamClient) dispatch(conn *websocket.Conn, ev Event) error {
	switch e := ev.(type) {
	case AuthSuccess:
		c.mu.Lock()
		if c.state != StateAuthPending {
			c.mu.Unlock()
			return nil
		}
		c.state = StateAuthenticated
		c.attempts = 0
		c.delay.Reset()
		h := c.handlers
		c.mu.Unlock()

		c.logger.Info("stream authenticated")
		err := c.subs.Apply(func(s Subscriptions) error {
			c.logger.Info("replaying subscriptions",
				zap.Strings("trades", s.Trades),
				zap.Strings("quotes", s.Quotes),
				zap.Strings("bars", s.Bars),
			)
			return c.writeJSON(conn, newSubscriptionMessage("subscribe", s))
		})
		if err != nil {
			return fmt.Errorf("replay subscriptions: %w", err)
		}
		if h.OnAuthenticated != nil {
			h.OnAuthenticated()
		}

	case AuthError:
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)

	case ErrorEvent:
		if c.State() == StateAuthPending {
			return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
		}
		c.logger.Warn("stream error", zap.Int("code", e.Code), zap.String("message", e.Message))
		c.emitError(&StreamError{Code: e.Code, Message: e.Message})

	case Connected:
		c.logger.Debug("stream greeting", zap.String("msg", e.Message))

	case SubscriptionAck:
		c.subs.Confirm(e.Subscriptions)
		c.logger.Debug("subscriptions confirmed",
			zap.Strings("trades", e.Trades),
			zap.Strings("quotes", e.Quotes),
			zap.Strings("bars", e.Bars),
		)

	case Trade:
		if h := c.currentHandlers(); h.OnTrade != nil {
			h.OnTrade(e)
		}

	case Quote:
		if h := c.currentHandlers(); h.OnQuote != nil {
			h.OnQuote(e)
		}

	case Bar:
		if h := c.currentHandlers(); h.OnBar != nil {
			h.OnBar(e)
		}

	case Unknown:
		if e.Err != nil {
			c.logger.Warn("dropping malformed element", zap.Error(e.Err), zap.ByteString("element", e.Raw))
			return nil
		}
		c.logger.Debug("ignoring stream message", zap.String("type", e.Type))
	}
	return nil
}

func (c *StreamClient) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *StreamClient) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *StreamClient) emitError(err error) {
	if h := c.currentHandlers(); h.OnError != nil {
		h.OnError(err)
	}
}

func (c *StreamClient) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosing {
		c.state = s
	}
}

// fail records a terminal error, reports it and marks the client stopped.
func (c *StreamClient) fail(err error) {
	c.emitError(err)
	c.finish(err)
}

func (c *StreamClient) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	c.err = err
	c.running = false
	c.stopping = false
	if c.cancel != nil {
		c.cancel()
	}
}
