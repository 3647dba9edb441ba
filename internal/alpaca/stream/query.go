package stream

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// minInterval is the floor regardless of configuration.
	minInterval = time.Second
	maxInterval = 24 * time.Hour
)

// Params are the per-connection query options.
type Params struct {
	Interval time.Duration
	Symbols  []string
}

// Defaults supplies the values used when the query omits them.
type Defaults struct {
	Interval     time.Duration
	MinInterval  time.Duration
	RelaySymbols []string
}

// ParseParams reads "interval" (seconds, fractional allowed) and "symbols"
// (comma separated). The interval is clamped to [max(MinInterval, 1s), 24h];
// a missing or unparseable interval uses the default.
func ParseParams(q url.Values, d Defaults) Params {
	interval := d.Interval
	if raw := strings.TrimSpace(q.Get("interval")); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
			// clamp in float seconds before converting to avoid int64 overflow
			secs = math.Min(secs, maxInterval.Seconds())
			interval = time.Duration(secs * float64(time.Second))
		}
	}

	floor := max(d.MinInterval, minInterval)
	interval = min(max(interval, floor), maxInterval)

	return Params{
		Interval: interval,
		Symbols:  ParseSymbols(q.Get("symbols")),
	}
}

// ParseSymbols splits a comma separated list, trimming and upper-casing each
// entry and dropping empties and duplicates.
func ParseSymbols(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
