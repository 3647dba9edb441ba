package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"
)

// go test -v --run TestNewClientValidation
func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr error
		anyErr  bool
	}{
		{name: "missing key", creds: Credentials{SecretKey: "s"}, wantErr: ErrMissingCredentials},
		{name: "missing secret", creds: Credentials{KeyID: "k"}, wantErr: ErrMissingCredentials},
		{name: "bad scheme", creds: Credentials{KeyID: "k", SecretKey: "s", BaseURL: "ftp://example.com"}, anyErr: true},
		{name: "no host", creds: Credentials{KeyID: "k", SecretKey: "s", BaseURL: "https://"}, anyErr: true},
		{name: "default base url", creds: Credentials{KeyID: "k", SecretKey: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.creds, Options{}, nil)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error, got nil")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if c.Credentials().BaseURL != DefaultPaperURL {
					t.Errorf("expected default paper url, got %s", c.Credentials().BaseURL)
				}
			}
		})
	}
}

// go test -v --run TestNewStreamURL
func TestNewStreamURL(t *testing.T) {
	c, err := NewClient(Credentials{KeyID: "k", SecretKey: "s"}, Options{Feed: FeedSIP}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := c.NewStream()
	if s.url != "wss://stream.data.alpaca.markets/v2/sip" {
		t.Errorf("unexpected stream url: %s", s.url)
	}
	if s.State() != StateDisconnected {
		t.Errorf("new stream must start disconnected, got %s", s.State())
	}
	if c.NewStream() == s {
		t.Error("each call must return a fresh stream client")
	}
}

// go test -v --run TestParseFeed
func TestParseFeed(t *testing.T) {
	for in, want := range map[string]Feed{"": FeedIEX, "IEX": FeedIEX, " sip ": FeedSIP} {
		got, err := ParseFeed(in)
		if err != nil || got != want {
			t.Errorf("ParseFeed(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFeed("otc"); err == nil {
		t.Error("expected error for unknown feed")
	}
}

// go test -v --run TestClientRateLimitIsPerClient
func TestClientRateLimitIsPerClient(t *testing.T) {
	srv := newFakeREST(t)
	creds := Credentials{KeyID: "key", SecretKey: "secret", BaseURL: srv.URL}
	opts := Options{RateLimit: 0.01, Burst: 2}

	c, err := NewClient(creds, opts, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.GetAccount(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.GetPositions(context.Background()); err != nil {
		t.Fatalf("second call: %v", err)
	}

	// the burst is spent for every caller of this client
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.GetAccount(ctx); err == nil {
		t.Fatal("expected the shared limiter to reject a third call")
	}

	// a separate client has its own budget
	other, err := NewClient(creds, opts, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := other.GetAccount(context.Background()); err != nil {
		t.Errorf("separate client should not share the budget: %v", err)
	}
}
