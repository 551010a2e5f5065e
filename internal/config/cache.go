package config

import "time"

// CacheConfig controls the derived-view cache. When Enabled is false or no
// Redis client could be reached, callers skip the cache entirely. Prefix
// namespaces every key (default "tools"); StatsTTL bounds how stale the
// aggregate stats view may get between invalidations.
type CacheConfig struct {
	Enabled  bool
	Prefix   string
	StatsTTL time.Duration
}

// LoadCacheConfig reads cache settings from the environment with defaults
// matching production behavior: caching on, five minute stats TTL.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  envBool("CACHE_ENABLED", true),
		Prefix:   envStr("CACHE_PREFIX", "tools"),
		StatsTTL: envDur("CACHE_STATS_TTL", 5*time.Minute),
	}
}
