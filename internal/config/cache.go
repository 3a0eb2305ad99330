package config

import "time"

// CacheConfig defines settings for the listing cache.  When Enabled is
// false or no Redis client could be built, the cache layer degrades to
// always-miss and every read computes against the database.  TTLs are
// deliberately short: listings tolerate a few minutes of staleness, and
// passive expiry is the only invalidation this design uses.
type CacheConfig struct {
    Enabled      bool
    Prefix       string
    MovementsTTL time.Duration
    PiecesTTL    time.Duration
    MetricsTTL   time.Duration
}

// LoadCacheConfig reads cache settings from the environment, with
// defaults applied for everything not set.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Prefix:       envStr("CACHE_PREFIX", "chartedart"),
        MovementsTTL: envDur("CACHE_MOVEMENTS_TTL", 2*time.Minute),
        PiecesTTL:    envDur("CACHE_PIECES_TTL", 30*time.Second),
        MetricsTTL:   envDur("CACHE_METRICS_TTL", time.Minute),
    }
}
