package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Supervisor binds each session's lifetime to its socket: the first read
// error or close frame tears the session down. It also keeps the set of live
// sessions so they can be closed on shutdown.
type Supervisor struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Run blocks until the session is torn down.
func (sv *Supervisor) Run(s *Session) {
	sv.mu.Lock()
	sv.sessions[s.ID] = s
	sv.mu.Unlock()
	defer func() {
		sv.mu.Lock()
		delete(sv.sessions, s.ID)
		sv.mu.Unlock()
	}()

	s.logger.Info("session opened")

	var wg conc.WaitGroup
	wg.Go(func() { sv.readPump(s) })
	wg.Go(func() { sv.pingPump(s) })
	wg.Wait()
}

// readPump discards client messages; its only job is to notice the socket closing.
func (sv *Supervisor) readPump(s *Session) {
	defer s.Teardown()

	s.sock.SetReadLimit(maxMessageSize)
	_ = s.sock.SetReadDeadline(time.Now().Add(pongWait))
	s.sock.SetPongHandler(func(string) error {
		return s.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.sock.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && !s.Closed() {
				s.logger.Warn("downstream read error", zap.Error(err))
			}
			return
		}
	}
}

func (sv *Supervisor) pingPump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				s.Teardown()
				return
			}
		}
	}
}

// Active returns the number of live sessions.
func (sv *Supervisor) Active() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.sessions)
}

// CloseAll closes every live session with a going-away frame.
func (sv *Supervisor) CloseAll(reason string) {
	sv.mu.Lock()
	sessions := make([]*Session, 0, len(sv.sessions))
	for _, s := range sv.sessions {
		sessions = append(sessions, s)
	}
	sv.mu.Unlock()

	for _, s := range sessions {
		s.Close(websocket.CloseGoingAway, reason)
	}
	sv.logger.Info("closed downstream sessions", zap.Int("count", len(sessions)))
}
