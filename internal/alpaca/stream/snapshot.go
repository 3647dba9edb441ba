package stream

import (
	"context"
	"strings"
	"time"

	"alpacastream/pkg/alpaca"

	"github.com/shopspring/decimal"
)

// AccountSource is the part of the user's Alpaca client a poll session reads.
type AccountSource interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	GetPositions(ctx context.Context) ([]alpaca.Position, error)
}

// Snapshot is one account P&L sample.
type Snapshot struct {
	Timestamp      time.Time         `json:"timestamp"`
	Equity         decimal.Decimal   `json:"equity"`
	Cash           decimal.Decimal   `json:"cash"`
	PortfolioValue decimal.Decimal   `json:"portfolio_value"`
	BuyingPower    decimal.Decimal   `json:"buying_power"`
	UnrealizedPL   float64           `json:"unrealized_pl"`
	RealizedPL     float64           `json:"realized_pl"`
	Positions      []alpaca.Position `json:"positions"`
}

type snapshotMessage struct {
	Success  bool      `json:"success"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// BuildSnapshot fetches the account and positions and aggregates P&L over the
// positions whose symbol is in symbols (all positions when symbols is empty).
func BuildSnapshot(ctx context.Context, src AccountSource, symbols []string, now time.Time) (*Snapshot, error) {
	account, err := src.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := src.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions = filterPositions(positions, symbols)

	unrealized, realized := decimal.Zero, decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedPL)
		realized = realized.Add(p.RealizedPL)
	}

	return &Snapshot{
		Timestamp:      now.UTC(),
		Equity:         account.Equity,
		Cash:           account.Cash,
		PortfolioValue: account.PortfolioValue,
		BuyingPower:    account.BuyingPower,
		UnrealizedPL:   unrealized.InexactFloat64(),
		RealizedPL:     realized.InexactFloat64(),
		Positions:      positions,
	}, nil
}

// filterPositions keeps positions whose symbol matches one of symbols,
// ignoring case. symbols are expected upper-cased already.
func filterPositions(positions []alpaca.Position, symbols []string) []alpaca.Position {
	if len(symbols) == 0 {
		return positions
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	out := make([]alpaca.Position, 0, len(positions))
	for _, p := range positions {
		if _, ok := want[strings.ToUpper(p.Symbol)]; ok {
			out = append(out, p)
		}
	}
	return out
}
