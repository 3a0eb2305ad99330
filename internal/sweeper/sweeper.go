// Package sweeper runs the periodic expiry pass that reclaims pieces
// whose reservation outlived its window.  The sweep itself is one
// idempotent engine call, so the loop here is deliberately thin: tick,
// call, log, repeat.  A failed pass is logged and retried on the next
// tick; it has no caller to report to.
package sweeper

import (
    "context"
    "log"
    "time"

    "github.com/nkosimano/chartedart-api/internal/clock"
)

// Expirer is the single engine operation the sweeper drives.
type Expirer interface {
    ExpireBatch(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper invokes ExpireBatch on a fixed cadence.
type Sweeper struct {
    engine   Expirer
    clock    clock.Clock
    interval time.Duration
    logf     func(format string, args ...any)
}

const defaultInterval = 5 * time.Minute

// New builds a Sweeper with the default 5 minute interval.
func New(engine Expirer, clk clock.Clock, opts ...Option) *Sweeper {
    s := &Sweeper{
        engine:   engine,
        clock:    clk,
        interval: defaultInterval,
        logf:     log.Printf,
    }
    for _, opt := range opts {
        opt(s)
    }
    return s
}

type Option func(*Sweeper)

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
    return func(s *Sweeper) {
        if d > 0 {
            s.interval = d
        }
    }
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Because ExpireBatch is idempotent and predicated on ACTIVE state,
// overlapping invocations (restarts, double triggers) are harmless.
func (s *Sweeper) Run(ctx context.Context) {
    s.RunOnce(ctx)

    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            s.logf("sweeper: stopping: %v", ctx.Err())
            return
        case <-ticker.C:
            s.RunOnce(ctx)
        }
    }
}

// RunOnce performs a single sweep and returns the number of reservations
// reclaimed.  Errors are logged and swallowed; the next tick retries.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
    count, err := s.engine.ExpireBatch(ctx, s.clock.Now())
    if err != nil {
        s.logf("sweeper: expiry pass failed, retrying next interval: %v", err)
        return 0
    }
    if count > 0 {
        s.logf("sweeper: reclaimed %d expired reservations", count)
    }
    return count
}
