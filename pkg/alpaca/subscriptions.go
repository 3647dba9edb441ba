package alpaca

import (
	"slices"
	"sync"
)

// ChannelKind is one of the per-symbol stream channels.
type ChannelKind string

const (
	ChannelTrades ChannelKind = "trades"
	ChannelQuotes ChannelKind = "quotes"
	ChannelBars   ChannelKind = "bars"
)

var channelKinds = []ChannelKind{ChannelTrades, ChannelQuotes, ChannelBars}

// Subscriptions lists symbols per channel. Empty lists are omitted on the wire.
type Subscriptions struct {
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
	Bars   []string `json:"bars"`
}

func (s Subscriptions) Empty() bool {
	return len(s.Trades) == 0 && len(s.Quotes) == 0 && len(s.Bars) == 0
}

func (s Subscriptions) get(kind ChannelKind) []string {
	switch kind {
	case ChannelTrades:
		return s.Trades
	case ChannelQuotes:
		return s.Quotes
	default:
		return s.Bars
	}
}

func (s *Subscriptions) set(kind ChannelKind, symbols []string) {
	switch kind {
	case ChannelTrades:
		s.Trades = symbols
	case ChannelQuotes:
		s.Quotes = symbols
	default:
		s.Bars = symbols
	}
}

type symbolSet map[ChannelKind]map[string]struct{}

func newSymbolSet() symbolSet {
	set := make(symbolSet, len(channelKinds))
	for _, kind := range channelKinds {
		set[kind] = make(map[string]struct{})
	}
	return set
}

func (set symbolSet) snapshot() Subscriptions {
	var out Subscriptions
	for _, kind := range channelKinds {
		if len(set[kind]) == 0 {
			continue
		}
		symbols := make([]string, 0, len(set[kind]))
		for sym := range set[kind] {
			symbols = append(symbols, sym)
		}
		slices.Sort(symbols)
		out.set(kind, symbols)
	}
	return out
}

// Reconciler tracks the desired subscription set and the set last confirmed by
// the stream. Desired is the ground truth and is replayed after every
// successful authentication; confirmed only changes on an upstream ack or a
// disconnect.
type Reconciler struct {
	mu        sync.Mutex
	desired   symbolSet
	confirmed symbolSet
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		desired:   newSymbolSet(),
		confirmed: newSymbolSet(),
	}
}

// SetDesired merges s into the desired set.
func (r *Reconciler) SetDesired(s Subscriptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range channelKinds {
		for _, sym := range s.get(kind) {
			r.desired[kind][sym] = struct{}{}
		}
	}
}

// Remove drops s from the desired set.
func (r *Reconciler) Remove(s Subscriptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range channelKinds {
		for _, sym := range s.get(kind) {
			delete(r.desired[kind], sym)
		}
	}
}

func (r *Reconciler) Desired() Subscriptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desired.snapshot()
}

func (r *Reconciler) Confirmed() Subscriptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed.snapshot()
}

// Confirm replaces the confirmed set wholesale with an upstream ack.
func (r *Reconciler) Confirm(ack Subscriptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = newSymbolSet()
	for _, kind := range channelKinds {
		for _, sym := range ack.get(kind) {
			r.confirmed[kind][sym] = struct{}{}
		}
	}
}

// Reset clears the confirmed set. Called on every disconnect.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = newSymbolSet()
}

// Apply sends the whole desired set in one subscribe frame. Nothing is sent
// when desired is empty.
func (r *Reconciler) Apply(send func(Subscriptions) error) error {
	desired := r.Desired()
	if desired.Empty() {
		return nil
	}
	return send(desired)
}
