package alpaca

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Event is one decoded element of an inbound stream frame.
type Event interface {
	event()
}

// AuthSuccess is {"T":"success","msg":"authenticated"}.
type AuthSuccess struct{}

// AuthError is {"msg":"unauthorized"} or {"message":"unauthorized"}.
type AuthError struct {
	Message string
}

// ErrorEvent is {"T":"error", ...} other than an unauthorized ack.
type ErrorEvent struct {
	Code    int
	Message string
}

// Connected is the {"T":"success","msg":"connected"} greeting sent right after the upgrade.
type Connected struct {
	Message string
}

type Trade struct {
	Type       string    `json:"T"`
	Symbol     string    `json:"S"`
	ID         int64     `json:"i"`
	Exchange   string    `json:"x"`
	Price      float64   `json:"p"`
	Size       float64   `json:"s"`
	Timestamp  time.Time `json:"t"`
	Conditions []string  `json:"c"`
	Tape       string    `json:"z"`
}

type Quote struct {
	Type        string    `json:"T"`
	Symbol      string    `json:"S"`
	BidExchange string    `json:"bx"`
	BidPrice    float64   `json:"bp"`
	BidSize     float64   `json:"bs"`
	AskExchange string    `json:"ax"`
	AskPrice    float64   `json:"ap"`
	AskSize     float64   `json:"as"`
	Timestamp   time.Time `json:"t"`
	Conditions  []string  `json:"c"`
	Tape        string    `json:"z"`
}

type Bar struct {
	Type       string    `json:"T"`
	Symbol     string    `json:"S"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     float64   `json:"v"`
	TradeCount int64     `json:"n"`
	VWAP       float64   `json:"vw"`
	Timestamp  time.Time `json:"t"`
}

// SubscriptionAck carries the full set of channels the stream currently serves.
type SubscriptionAck struct {
	Subscriptions
}

// Unknown is an element whose type is not handled, or one that could not be
// decoded into its type, in which case Err is set.
type Unknown struct {
	Type string
	Raw  json.RawMessage
	Err  error
}

func (AuthSuccess) event()     {}
func (AuthError) event()       {}
func (ErrorEvent) event()      {}
func (Connected) event()       {}
func (Trade) event()           {}
func (Quote) event()           {}
func (Bar) event()             {}
func (SubscriptionAck) event() {}
func (Unknown) event()         {}

const (
	msgAuthenticated = "authenticated"
	msgUnauthorized  = "unauthorized"

	typeSuccess      = "success"
	typeError        = "error"
	typeSubscription = "subscription"
	typeTrade        = "t"
	typeQuote        = "q"
	typeBar          = "b"
)

var errEmptyFrame = errors.New("empty frame")

// envelope holds the discriminating fields shared by every element. Keys
// match case-insensitively, so "t" needs a field of its own to keep the
// data event timestamp out of T.
type envelope struct {
	T       string          `json:"T"`
	Time    json.RawMessage `json:"t"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

// DecodeFrame decodes an inbound frame. The stream sends a JSON array, a bare
// object is accepted as a one-element frame. An error is returned only when
// the frame itself does not parse; an element that fails to decode becomes an
// Unknown with Err set and its siblings are kept.
func DecodeFrame(data []byte) ([]Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errEmptyFrame
	}

	var elems []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
	case '{':
		elems = []json.RawMessage{data}
	default:
		return nil, fmt.Errorf("decode frame: unexpected leading byte %q", data[0])
	}

	events := make([]Event, 0, len(elems))
	for _, raw := range elems {
		events = append(events, decodeEvent(raw))
	}
	return events, nil
}

func decodeEvent(raw json.RawMessage) Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unknown{Raw: raw, Err: fmt.Errorf("decode element: %w", err)}
	}

	switch {
	case env.Msg == msgAuthenticated:
		return AuthSuccess{}
	case env.Msg == msgUnauthorized || env.Message == msgUnauthorized:
		return AuthError{Message: msgUnauthorized}
	}

	switch env.T {
	case typeError:
		msg := env.Msg
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		return ErrorEvent{Code: env.Code, Message: msg}
	case typeSuccess:
		return Connected{Message: env.Msg}
	case typeTrade:
		var t Trade
		if err := json.Unmarshal(raw, &t); err != nil {
			return Unknown{Type: env.T, Raw: raw, Err: fmt.Errorf("decode trade: %w", err)}
		}
		return t
	case typeQuote:
		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			return Unknown{Type: env.T, Raw: raw, Err: fmt.Errorf("decode quote: %w", err)}
		}
		return q
	case typeBar:
		var b Bar
		if err := json.Unmarshal(raw, &b); err != nil {
			return Unknown{Type: env.T, Raw: raw, Err: fmt.Errorf("decode bar: %w", err)}
		}
		return b
	case typeSubscription:
		var ack SubscriptionAck
		if err := json.Unmarshal(raw, &ack.Subscriptions); err != nil {
			return Unknown{Type: env.T, Raw: raw, Err: fmt.Errorf("decode subscription ack: %w", err)}
		}
		return ack
	}
	return Unknown{Type: env.T, Raw: raw}
}

type authMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscriptionMessage struct {
	Action string   `json:"action"`
	Trades []string `json:"trades,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	Bars   []string `json:"bars,omitempty"`
}

func newSubscriptionMessage(action string, s Subscriptions) subscriptionMessage {
	return subscriptionMessage{
		Action: action,
		Trades: s.Trades,
		Quotes: s.Quotes,
		Bars:   s.Bars,
	}
}
