package stream

import (
	"errors"

	"alpacastream/pkg/alpaca"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type tradeMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// StreamSource hands out fresh upstream stream clients for one user.
type StreamSource interface {
	NewStream() *alpaca.StreamClient
}

// Relay forwards upstream trades for a fixed symbol set to one session. Each
// relay owns its own upstream connection.
type Relay struct {
	session *Session
	stream  *alpaca.StreamClient
	symbols []string
}

func NewRelay(s *Session, src StreamSource, symbols []string) *Relay {
	return &Relay{
		session: s,
		stream:  src.NewStream(),
		symbols: symbols,
	}
}

// Start subscribes, connects and returns without waiting for the handshake.
// The upstream client is disconnected when the session is torn down, and a
// terminal upstream failure closes the session.
func (r *Relay) Start() error {
	log := r.session.logger

	r.stream.SetHandlers(alpaca.Handlers{
		OnAuthenticated: func() {
			log.Info("upstream stream authenticated", zap.Strings("symbols", r.symbols))
		},
		OnError: func(err error) {
			r.push(errorMessage{Error: err.Error()})
		},
		OnTrade: func(t alpaca.Trade) {
			r.push(tradeMessage{Symbol: t.Symbol, Price: t.Price})
		},
	})

	if err := r.stream.Subscribe(r.symbols, nil, nil); err != nil {
		return err
	}
	if err := r.stream.Connect(r.session.Context()); err != nil {
		return err
	}
	r.session.OnTeardown(r.stream.Disconnect)

	go r.watch(r.stream.Done())
	return nil
}

// Stream exposes the upstream client.
func (r *Relay) Stream() *alpaca.StreamClient { return r.stream }

func (r *Relay) watch(done <-chan struct{}) {
	select {
	case <-r.session.Done():
		return
	case <-done:
	}

	err := r.stream.Err()
	if err == nil {
		return
	}
	code, reason := websocket.CloseInternalServerErr, "Upstream stream unavailable"
	if errors.Is(err, alpaca.ErrUnauthorized) {
		code, reason = websocket.ClosePolicyViolation, "Alpaca authentication failed"
	}
	r.session.Close(code, reason)
}

func (r *Relay) push(v any) {
	if err := r.session.Push(v); err != nil && !errors.Is(err, ErrSessionClosed) {
		r.session.logger.Warn("relay push failed", zap.Error(err))
		r.session.Teardown()
	}
}
