package cache

// Metric names reported by Store implementations through stats.Tracker.
const (
	MetricMiss    = "cache_miss"
	MetricHit     = "cache_hit"
	MetricExpired = "cache_expired"
	MetricWrite   = "cache_write"
	MetricItems   = "cache_items"
	MetricEvict   = "cache_evict"

	// MetricRefreshed counts stale values re-pushed with a short ttl while a Failover rebuild is pending.
	MetricRefreshed = "cache_refreshed"
	// MetricBuild counts Failover rebuild attempts.
	MetricBuild = "cache_build"
	// MetricFailed counts failed Failover rebuilds.
	MetricFailed = "cache_build_failed"
	// MetricChanged counts Failover rebuilds that produced a different value than the stale one it replaced.
	MetricChanged = "cache_changed"
)
