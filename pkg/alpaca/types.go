package alpaca

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Credentials are the per-user keys used for both the REST and the stream API.
type Credentials struct {
	KeyID     string
	SecretKey string
	BaseURL   string // trading REST endpoint (paper or live)
}

// Valid reports whether both keys are present.
func (c Credentials) Valid() bool {
	return c.KeyID != "" && c.SecretKey != ""
}

// Account is the subset of GET /v2/account the relay reads.
type Account struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Cash             decimal.Decimal `json:"cash"`
	Equity           decimal.Decimal `json:"equity"`
	LastEquity       decimal.Decimal `json:"last_equity"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	PatternDayTrader bool            `json:"pattern_day_trader"`
	TradingBlocked   bool            `json:"trading_blocked"`
}

// Position is one open position from GET /v2/positions.
// RealizedPL is not reported by every account type and stays zero when absent.
type Position struct {
	AssetID              string          `json:"asset_id"`
	Symbol               string          `json:"symbol"`
	Exchange             string          `json:"exchange"`
	AssetClass           string          `json:"asset_class"`
	Side                 string          `json:"side"`
	Qty                  decimal.Decimal `json:"qty"`
	AvgEntryPrice        decimal.Decimal `json:"avg_entry_price"`
	MarketValue          decimal.Decimal `json:"market_value"`
	CostBasis            decimal.Decimal `json:"cost_basis"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	LastdayPrice         decimal.Decimal `json:"lastday_price"`
	ChangeToday          decimal.Decimal `json:"change_today"`
	UnrealizedPL         decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC       decimal.Decimal `json:"unrealized_plpc"`
	UnrealizedIntradayPL decimal.Decimal `json:"unrealized_intraday_pl"`
	RealizedPL           decimal.Decimal `json:"realized_pl"`
}

// APIError is a non-2xx REST response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("alpaca error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("alpaca error: status %d: %s", e.StatusCode, e.Message)
}
