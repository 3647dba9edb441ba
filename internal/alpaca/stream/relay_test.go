package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"alpacastream/pkg/alpaca"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upstream is a minimal market data stream. accept decides the reply to the
// auth frame; after a successful auth it acks the subscription and sends one
// trade, then holds the connection until the client goes away.
type upstream struct {
	server *httptest.Server
	accept bool
	closed chan struct{}
	subs   atomic.Value // []any from the subscribe frame
}

func newUpstream(t *testing.T, accept bool) *upstream {
	t.Helper()
	u := &upstream{accept: accept, closed: make(chan struct{})}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer close(u.closed)
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"connected"}]`))
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if !u.accept {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"error","code":402,"msg":"auth failed"}]`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"authenticated"}]`))

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		u.subs.Store(sub["trades"])
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"subscription","trades":["AAPL","TSLA"],"quotes":[],"bars":[]}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"t","S":"AAPL","i":1,"x":"V","p":187.25,"s":10,"t":"2024-03-01T15:00:00Z","z":"C"}]`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) NewStream() *alpaca.StreamClient {
	return alpaca.NewStreamClient(alpaca.StreamConfig{
		URL:                  "ws" + strings.TrimPrefix(u.server.URL, "http"),
		Credentials:          alpaca.Credentials{KeyID: "key", SecretKey: "secret"},
		MaxReconnectAttempts: 0,
		ReconnectDelay:       10 * time.Millisecond,
	}, zap.NewNop())
}

// go test -v --run TestRelayForwardsTrades
func TestRelayForwardsTrades(t *testing.T) {
	up := newUpstream(t, true)
	sock := newFakeSocket()
	s := NewSession(context.Background(), sock, ModeRelayTrades, "u1", zap.NewNop())

	r := NewRelay(s, up, []string{"AAPL", "TSLA"})
	if err := r.Start(); err != nil {
		t.Fatalf("start relay: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(sock.messages(t)) == 1 })
	msg := sock.messages(t)[0]
	if msg["symbol"] != "AAPL" || msg["price"] != 187.25 || len(msg) != 2 {
		t.Errorf("unexpected trade push: %v", msg)
	}
	if got, _ := up.subs.Load().([]any); len(got) != 2 {
		t.Errorf("expected subscribe for 2 trade symbols, got %v", got)
	}

	s.Teardown()
	select {
	case <-r.Stream().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("upstream client still running after teardown")
	}
	select {
	case <-up.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection not closed after teardown")
	}
	if err := r.Stream().Err(); err != nil {
		t.Errorf("manual disconnect should not leave an error, got %v", err)
	}
}

// go test -v --run TestRelayClosesOnUpstreamAuthFailure
func TestRelayClosesOnUpstreamAuthFailure(t *testing.T) {
	up := newUpstream(t, false)
	sock := newFakeSocket()
	s := NewSession(context.Background(), sock, ModeRelayTrades, "u1", zap.NewNop())

	r := NewRelay(s, up, []string{"AAPL"})
	if err := r.Start(); err != nil {
		t.Fatalf("start relay: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after upstream auth failure")
	}

	frames := sock.closeFrames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 close frame, got %d", len(frames))
	}
	want := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Alpaca authentication failed")
	if string(frames[0].data) != string(want) {
		t.Errorf("unexpected close payload %q", frames[0].data)
	}

	msgs := sock.messages(t)
	if len(msgs) == 0 || msgs[0]["error"] == nil {
		t.Errorf("expected an error push before close, got %v", msgs)
	}
}

// go test -v --run TestRelayClosesWhenUpstreamUnreachable
func TestRelayClosesWhenUpstreamUnreachable(t *testing.T) {
	up := newUpstream(t, true)
	up.server.Close()

	sock := newFakeSocket()
	s := NewSession(context.Background(), sock, ModeRelayTrades, "u1", zap.NewNop())
	r := NewRelay(s, up, []string{"AAPL"})
	if err := r.Start(); err != nil {
		t.Fatalf("start relay: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after reconnect budget ran out")
	}
	frames := sock.closeFrames()
	want := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "Upstream stream unavailable")
	if len(frames) != 1 || string(frames[0].data) != string(want) {
		t.Errorf("unexpected close frames %v", frames)
	}
}
