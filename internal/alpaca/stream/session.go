package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrSessionClosed = errors.New("session closed")

// Mode selects what a session pushes.
type Mode string

const (
	ModePollSnapshot Mode = "poll-snapshot"
	ModeRelayTrades  Mode = "relay-trades"
)

// Socket is the downstream connection. *websocket.Conn satisfies it.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one downstream connection. Every push checks the closed flag,
// writes are serialized, and teardown runs once no matter how many close or
// error paths fire.
type Session struct {
	ID     string
	Mode   Mode
	UserID string

	sock   Socket
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once

	mu        sync.Mutex
	teardowns []func()
}

func NewSession(parent context.Context, sock Socket, mode Mode, userID string, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &Session{
		ID:     id,
		Mode:   mode,
		UserID: userID,
		sock:   sock,
		logger: logger.With(
			zap.String("session_id", id),
			zap.String("mode", string(mode)),
			zap.String("user_id", userID),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled on teardown.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed on teardown.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) Logger() *zap.Logger { return s.logger }

// OnTeardown registers fn to run at teardown. If the session is already torn
// down fn runs immediately.
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	if !s.closed.Load() {
		s.teardowns = append(s.teardowns, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// Push encodes v as JSON and sends it as one text message.
func (s *Session) Push(v any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	_ = s.sock.SetWriteDeadline(time.Now().Add(writeWait))
	return s.sock.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame with code and reason, then tears down.
func (s *Session) Close(code int, reason string) {
	s.writeMu.Lock()
	if !s.closed.Load() {
		_ = s.sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(writeWait))
	}
	s.writeMu.Unlock()
	s.logger.Info("closing session", zap.Int("code", code), zap.String("reason", reason))
	s.Teardown()
}

// Teardown marks the session closed, runs the registered cleanups and closes
// the socket. Only the first call has any effect.
func (s *Session) Teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		fns := s.teardowns
		s.teardowns = nil
		s.mu.Unlock()

		s.cancel()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}

		s.writeMu.Lock()
		_ = s.sock.Close()
		s.writeMu.Unlock()
		s.logger.Info("session torn down")
	})
}
