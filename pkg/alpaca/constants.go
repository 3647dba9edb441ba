package alpaca

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPaperURL  = "https://paper-api.alpaca.markets"
	DefaultStreamURL = "wss://stream.data.alpaca.markets/v2"

	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3000 * time.Millisecond
)

// Feed selects the market data source of the stream endpoint.
type Feed string

const (
	FeedIEX Feed = "iex"
	FeedSIP Feed = "sip"
)

// ParseFeed parses a feed name. An empty string selects IEX.
func ParseFeed(s string) (Feed, error) {
	switch f := Feed(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FeedIEX, nil
	case FeedIEX, FeedSIP:
		return f, nil
	default:
		return "", fmt.Errorf("invalid feed: %s", s)
	}
}

// StreamURL joins the stream base URL and the feed, e.g. wss://stream.data.alpaca.markets/v2/iex.
func StreamURL(base string, feed Feed) string {
	if base == "" {
		base = DefaultStreamURL
	}
	return strings.TrimRight(base, "/") + "/" + string(feed)
}
