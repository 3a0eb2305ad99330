package sweeper

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"

    "github.com/nkosimano/chartedart-api/internal/clock"
)

type fakeExpirer struct {
    mu    sync.Mutex
    calls []time.Time
    count int64
    err   error
}

func (f *fakeExpirer) ExpireBatch(ctx context.Context, now time.Time) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls = append(f.calls, now)
    return f.count, f.err
}

func (f *fakeExpirer) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.calls)
}

func TestRunOnce(t *testing.T) {
    t.Parallel()
    now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

    t.Run("passes the clock's now and reports the count", func(t *testing.T) {
        eng := &fakeExpirer{count: 3}
        var logged []string
        s := New(eng, clock.NewFixed(now))
        s.logf = func(format string, args ...any) {
            logged = append(logged, fmt.Sprintf(format, args...))
        }

        got := s.RunOnce(context.Background())
        assert.Equal(t, int64(3), got)
        assert.Equal(t, []time.Time{now}, eng.calls)
        assert.Equal(t, []string{"sweeper: reclaimed 3 expired reservations"}, logged)
    })

    t.Run("quiet when nothing was due", func(t *testing.T) {
        eng := &fakeExpirer{count: 0}
        var logged []string
        s := New(eng, clock.NewFixed(now))
        s.logf = func(format string, args ...any) {
            logged = append(logged, fmt.Sprintf(format, args...))
        }

        assert.Equal(t, int64(0), s.RunOnce(context.Background()))
        assert.Empty(t, logged)
    })

    t.Run("failure is logged and deferred to the next run", func(t *testing.T) {
        eng := &fakeExpirer{err: errors.New("store unavailable: dial tcp")}
        var logged []string
        s := New(eng, clock.NewFixed(now))
        s.logf = func(format string, args ...any) {
            logged = append(logged, fmt.Sprintf(format, args...))
        }

        assert.Equal(t, int64(0), s.RunOnce(context.Background()))
        assert.Len(t, logged, 1)
        assert.Contains(t, logged[0], "retrying next interval")
    })
}

func TestRun(t *testing.T) {
    t.Parallel()

    eng := &fakeExpirer{}
    s := New(eng, clock.NewSystem(), WithInterval(10*time.Millisecond))
    s.logf = func(string, ...any) {}

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() {
        s.Run(ctx)
        close(done)
    }()

    // Immediate pass plus at least two ticks.
    deadline := time.After(2 * time.Second)
    for eng.callCount() < 3 {
        select {
        case <-deadline:
            t.Fatalf("expected at least 3 sweeps, got %d", eng.callCount())
        case <-time.After(5 * time.Millisecond):
        }
    }
    cancel()

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("Run did not stop after context cancellation")
    }
}
