package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// skipLogEvery throttles the skipped tick warning.
const skipLogEvery = 10

// Poller pushes an account snapshot right away and then on a fixed cadence.
// A tick that fires while the previous fetch is still running is skipped.
type Poller struct {
	session  *Session
	source   AccountSource
	interval time.Duration
	symbols  []string
	now      func() time.Time

	inFlight atomic.Bool
	skipped  atomic.Int64
}

// NewPoller uses p.Interval as given; a non-positive interval falls back to
// the one second floor.
func NewPoller(s *Session, src AccountSource, p Params) *Poller {
	if p.Interval <= 0 {
		p.Interval = minInterval
	}
	return &Poller{
		session:  s,
		source:   src,
		interval: p.Interval,
		symbols:  p.Symbols,
		now:      time.Now,
	}
}

// Run blocks until the session is torn down. In-flight fetches are cancelled
// and waited for before it returns.
func (p *Poller) Run() {
	ctx := p.session.Context()
	p.session.logger.Info("poll session started",
		zap.Duration("interval", p.interval),
		zap.Strings("symbols", p.symbols),
	)

	var wg conc.WaitGroup
	defer wg.Wait()

	p.tick(ctx, &wg)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, &wg)
		}
	}
}

// Skipped returns how many ticks were dropped by the in-flight guard.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

func (p *Poller) tick(ctx context.Context, wg *conc.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		n := p.skipped.Add(1)
		if n == 1 || n%skipLogEvery == 0 {
			p.session.logger.Warn("previous snapshot still in flight, skipping tick",
				zap.Int64("skipped", n),
				zap.Duration("interval", p.interval),
			)
		}
		return
	}
	wg.Go(func() {
		defer p.inFlight.Store(false)
		p.pushSnapshot(ctx)
	})
}

func (p *Poller) pushSnapshot(ctx context.Context) {
	snap, err := BuildSnapshot(ctx, p.source, p.symbols, p.now())
	if p.session.Closed() {
		return
	}

	msg := snapshotMessage{Success: true, Snapshot: snap}
	if err != nil {
		p.session.logger.Warn("snapshot fetch failed", zap.Error(err))
		msg = snapshotMessage{Success: false, Error: err.Error()}
	}

	if err := p.session.Push(msg); err != nil && !errors.Is(err, ErrSessionClosed) {
		p.session.logger.Warn("snapshot push failed", zap.Error(err))
		p.session.Teardown()
	}
}
