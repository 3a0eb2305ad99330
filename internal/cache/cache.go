// Package cache implements the cache-aside layer in front of the
// read-heavy listing queries.  Values are JSON snapshots with a per-key
// TTL; the cache is never the source of truth for reservation state, and a
// cache outage degrades every lookup to a miss rather than failing the
// read path.
package cache

import (
    "context"
    "crypto/sha1"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// Client is the slice of the Redis API the store needs.  *redis.Client
// satisfies it; tests substitute fakes.
type Client interface {
    Get(ctx context.Context, key string) *redis.StringCmd
    Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Store wraps a cache client with cache-aside semantics.  A nil client is
// valid and disables caching: every lookup computes fresh.
type Store struct {
    client       Client
    writeTimeout time.Duration
    logf         func(format string, args ...any)
}

const defaultWriteTimeout = 2 * time.Second

// New builds a Store around the given client.  Pass nil when Redis is not
// reachable; callers keep working against the database.
func New(client Client) *Store {
    // A nil *redis.Client handed in through the interface still compares
    // non-nil; normalize it so the disabled path applies instead of a nil
    // receiver call.
    if c, ok := client.(*redis.Client); ok && c == nil {
        client = nil
    }
    return &Store{
        client:       client,
        writeTimeout: defaultWriteTimeout,
        logf:         log.Printf,
    }
}

// GetOrCompute returns the cached value under key when fresh, otherwise
// invokes compute, returns its result to the caller and writes it back
// asynchronously.  The write-back never blocks or fails the caller; cache
// errors are logged and treated as a miss.  Within a TTL window a healthy
// cache calls compute at most once per key under single-threaded use.
func GetOrCompute[T any](ctx context.Context, s *Store, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
    if s.client != nil {
        raw, err := s.client.Get(ctx, key).Bytes()
        switch {
        case err == nil:
            var v T
            if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
                return v, nil
            }
            // Unreadable entry: recompute and overwrite below.
            s.logf("cache: decode %s: stale or corrupt entry, recomputing", key)
        case errors.Is(err, redis.Nil):
            // miss
        default:
            s.logf("cache: get %s: %v", key, err)
        }
    }

    v, err := compute(ctx)
    if err != nil {
        var zero T
        return zero, err
    }
    s.storeAsync(key, v, ttl)
    return v, nil
}

// storeAsync fires the write-back on a detached context so a slow or dead
// cache never holds a response open.  Failures are logged, never surfaced.
func (s *Store) storeAsync(key string, v any, ttl time.Duration) {
    if s.client == nil {
        return
    }
    payload, err := json.Marshal(v)
    if err != nil {
        s.logf("cache: encode %s: %v", key, err)
        return
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
        defer cancel()
        if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
            s.logf("cache: set %s: %v", key, err)
        }
    }()
}

// Key builds a deterministic cache key from a namespace prefix and every
// parameter that affects the result.  Call sites must pass all of them so
// two logically different queries never collide.  The parameter tail is
// hashed to keep keys short and free of user-controlled bytes.
func Key(prefix string, parts ...string) string {
    tail := strings.Join(parts, ":")
    sum := sha1.Sum([]byte(tail))
    return fmt.Sprintf("%s:%x", prefix, sum)
}
