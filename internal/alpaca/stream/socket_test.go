package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// fakeSocket is an in-memory Socket. ReadMessage blocks until fail or Close.
type fakeSocket struct {
	mu       sync.Mutex
	writes   [][]byte
	controls []controlFrame
	closes   int
	writeErr error

	closed   chan struct{}
	readErr  chan error
	closeOne sync.Once
}

type controlFrame struct {
	kind int
	data []byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		closed:  make(chan struct{}),
		readErr: make(chan error, 1),
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case err := <-f.readErr:
		return 0, nil, err
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) WriteControl(kind int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlFrame{kind: kind, data: data})
	return nil
}

func (f *fakeSocket) SetReadLimit(int64) {}
func (f *fakeSocket) SetReadDeadline(time.Time) error { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOne.Do(func() { close(f.closed) })
	return nil
}

// fail makes the pending ReadMessage return err, as a dropped client would.
func (f *fakeSocket) fail(err error) { f.readErr <- err }

func (f *fakeSocket) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.writes))
	for _, w := range f.writes {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err != nil {
			t.Fatalf("push is not a JSON object: %s", w)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeSocket) closeFrames() []controlFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []controlFrame
	for _, c := range f.controls {
		if c.kind == websocket.CloseMessage {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSocket) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
