package cache

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client.  Writes signal wrote so tests can
// wait for the asynchronous write-back deterministically.
type fakeClient struct {
    mu      sync.Mutex
    data    map[string]string
    failAll bool
    wrote   chan string
}

func newFakeClient() *fakeClient {
    return &fakeClient{data: make(map[string]string), wrote: make(chan string, 16)}
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.failAll {
        return redis.NewStringResult("", errors.New("connection refused"))
    }
    v, ok := f.data[key]
    if !ok {
        return redis.NewStringResult("", redis.Nil)
    }
    return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.failAll {
        return redis.NewStatusResult("", errors.New("connection refused"))
    }
    f.data[key] = string(value.([]byte))
    select {
    case f.wrote <- key:
    default:
    }
    return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) awaitWrite(t *testing.T) {
    t.Helper()
    select {
    case <-f.wrote:
    case <-time.After(time.Second):
        t.Fatal("timed out waiting for cache write-back")
    }
}

type snapshot struct {
    Items []string `json:"items"`
}

func TestGetOrCompute(t *testing.T) {
    t.Parallel()
    ctx := context.Background()

    t.Run("miss computes and writes back", func(t *testing.T) {
        client := newFakeClient()
        store := New(client)

        calls := 0
        v, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            calls++
            return snapshot{Items: []string{"a", "b"}}, nil
        })
        require.NoError(t, err)
        assert.Equal(t, []string{"a", "b"}, v.Items)
        assert.Equal(t, 1, calls)

        client.awaitWrite(t)

        // Second lookup is a hit; compute must not run again.
        v, err = GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            calls++
            return snapshot{}, nil
        })
        require.NoError(t, err)
        assert.Equal(t, []string{"a", "b"}, v.Items)
        assert.Equal(t, 1, calls)
    })

    t.Run("distinct keys compute independently", func(t *testing.T) {
        client := newFakeClient()
        store := New(client)

        calls := 0
        compute := func(ctx context.Context) (snapshot, error) {
            calls++
            return snapshot{}, nil
        }
        _, err := GetOrCompute(ctx, store, "list:1", time.Minute, compute)
        require.NoError(t, err)
        _, err = GetOrCompute(ctx, store, "list:2", time.Minute, compute)
        require.NoError(t, err)
        assert.Equal(t, 2, calls)
    })

    t.Run("erroring cache degrades to always-miss", func(t *testing.T) {
        client := newFakeClient()
        client.failAll = true
        store := New(client)
        store.logf = func(string, ...any) {}

        calls := 0
        for i := 0; i < 3; i++ {
            v, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
                calls++
                return snapshot{Items: []string{"fresh"}}, nil
            })
            require.NoError(t, err)
            assert.Equal(t, []string{"fresh"}, v.Items)
        }
        assert.Equal(t, 3, calls, "every call falls through to compute")
    })

    t.Run("nil client computes fresh", func(t *testing.T) {
        store := New(nil)

        v, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            return snapshot{Items: []string{"db"}}, nil
        })
        require.NoError(t, err)
        assert.Equal(t, []string{"db"}, v.Items)
    })

    t.Run("typed nil redis client computes fresh", func(t *testing.T) {
        // A failed startup connect yields a nil *redis.Client; passed
        // through the Client interface it must behave like a disabled
        // cache, not a nil receiver call.
        store := New((*redis.Client)(nil))

        calls := 0
        v, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            calls++
            return snapshot{Items: []string{"db"}}, nil
        })
        require.NoError(t, err)
        assert.Equal(t, []string{"db"}, v.Items)
        assert.Equal(t, 1, calls)
    })

    t.Run("compute failure propagates and caches nothing", func(t *testing.T) {
        client := newFakeClient()
        store := New(client)

        boom := errors.New("query failed")
        _, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            return snapshot{}, boom
        })
        assert.ErrorIs(t, err, boom)
        assert.Empty(t, client.data)
    })

    t.Run("corrupt entry is recomputed", func(t *testing.T) {
        client := newFakeClient()
        client.data["k1"] = "{not json"
        store := New(client)
        store.logf = func(string, ...any) {}

        calls := 0
        v, err := GetOrCompute(ctx, store, "k1", time.Minute, func(ctx context.Context) (snapshot, error) {
            calls++
            return snapshot{Items: []string{"good"}}, nil
        })
        require.NoError(t, err)
        assert.Equal(t, 1, calls)
        assert.Equal(t, []string{"good"}, v.Items)
    })
}

func TestKey(t *testing.T) {
    t.Parallel()

    k1 := Key("movements", "status", "ACTIVE", "page", "1")
    k2 := Key("movements", "status", "ACTIVE", "page", "2")
    k3 := Key("movements", "status", "ACTIVE", "page", "1")

    assert.NotEqual(t, k1, k2, "parameters must participate in the key")
    assert.Equal(t, k1, k3, "same parameters produce the same key")
    assert.True(t, len(k1) > len("movements:"))
    assert.Contains(t, k1, "movements:")
}
