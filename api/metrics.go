package api

// CacheMetrics is the admin view of cache effectiveness.
type CacheMetrics struct {
	TotalRequests    uint64  `json:"total_requests"`
	Hits             uint64  `json:"hits"`
	Misses           uint64  `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	AvgLatencyMillis float64 `json:"avg_latency_ms"`
	CachedPosts      int     `json:"cached_posts"`
	CachedLists      int     `json:"cached_lists"`
	StatsCached      bool    `json:"stats_cached"`
}
