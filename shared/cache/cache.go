// Package cache is an in-process TTL cache for blog content: single posts by
// slug, list query results by canonical key, and one aggregate stats slot.
// It sits in front of both the relational mirror and the remote file store;
// a miss here is a normal outcome, never an error.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dropblog/dropblog/blog/domain"
)

// Config tunes TTLs, capacity and the expiry sweep cadence.
type Config struct {
	PostTTL         time.Duration
	ListTTL         time.Duration
	StatsTTL        time.Duration
	MaxPosts        int
	MaxLists        int
	CleanupInterval time.Duration
}

// DefaultConfig mirrors the production tuning: posts live 10 minutes, list
// results 5, stats 15, with a sweep at most every 5 minutes.
func DefaultConfig() Config {
	return Config{
		PostTTL:         10 * time.Minute,
		ListTTL:         5 * time.Minute,
		StatsTTL:        15 * time.Minute,
		MaxPosts:        1000,
		MaxLists:        50,
		CleanupInterval: 5 * time.Minute,
	}
}

// Metrics tracks cache effectiveness and a smoothed request latency.
type Metrics struct {
	TotalRequests    uint64
	Hits             uint64
	Misses           uint64
	HitRate          float64 // percent
	AvgLatencyMillis float64 // exponential moving average
}

type cachedPost struct {
	post      *domain.Post
	cachedAt  time.Time
	expiresAt time.Time
}

type cachedList struct {
	posts     []*domain.Post
	total     int
	cachedAt  time.Time
	expiresAt time.Time
}

type cachedStats struct {
	stats     *domain.PostStats
	expiresAt time.Time
}

// ContentCache holds three independent TTL maps behind reader/writer locks
// so concurrent reads never block each other. Entries are replaced whole,
// never mutated in place.
type ContentCache struct {
	config Config
	now    func() time.Time

	postsMu sync.RWMutex
	posts   map[string]cachedPost

	listsMu sync.RWMutex
	lists   map[string]cachedList

	statsMu sync.RWMutex
	stats   *cachedStats

	metricsMu sync.Mutex
	metrics   Metrics

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

// New creates a ContentCache with the given configuration.
func New(config Config) *ContentCache {
	now := time.Now
	return &ContentCache{
		config:      config,
		now:         now,
		posts:       make(map[string]cachedPost),
		lists:       make(map[string]cachedList),
		lastCleanup: now(),
	}
}

// GetPost returns the cached post for slug, or nil on miss or expiry.
func (c *ContentCache) GetPost(slug string) *domain.Post {
	c.postsMu.RLock()
	entry, ok := c.posts[slug]
	c.postsMu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		c.recordHit()
		return entry.post
	}
	c.recordMiss()
	return nil
}

// SetPost caches a post under its slug, evicting the oldest quarter of
// entries first when the map is full and the key is new.
func (c *ContentCache) SetPost(slug string, post *domain.Post) {
	c.cleanupIfNeeded()

	c.postsMu.Lock()
	defer c.postsMu.Unlock()

	if _, exists := c.posts[slug]; !exists && len(c.posts) >= c.config.MaxPosts {
		evictOldest(c.posts, func(e cachedPost) time.Time { return e.cachedAt })
	}

	now := c.now()
	c.posts[slug] = cachedPost{post: post, cachedAt: now, expiresAt: now.Add(c.config.PostTTL)}
}

// GetList returns a cached list result for the canonical query key.
func (c *ContentCache) GetList(key string) ([]*domain.Post, int, bool) {
	c.listsMu.RLock()
	entry, ok := c.lists[key]
	c.listsMu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		c.recordHit()
		return entry.posts, entry.total, true
	}
	c.recordMiss()
	return nil, 0, false
}

// SetList caches one page of posts plus the pre-pagination total.
func (c *ContentCache) SetList(key string, posts []*domain.Post, total int) {
	c.cleanupIfNeeded()

	c.listsMu.Lock()
	defer c.listsMu.Unlock()

	if _, exists := c.lists[key]; !exists && len(c.lists) >= c.config.MaxLists {
		evictOldest(c.lists, func(e cachedList) time.Time { return e.cachedAt })
	}

	now := c.now()
	c.lists[key] = cachedList{posts: posts, total: total, cachedAt: now, expiresAt: now.Add(c.config.ListTTL)}
}

// GetStats returns the cached aggregate stats, or nil on miss or expiry.
func (c *ContentCache) GetStats() *domain.PostStats {
	c.statsMu.RLock()
	entry := c.stats
	c.statsMu.RUnlock()

	if entry != nil && c.now().Before(entry.expiresAt) {
		c.recordHit()
		return entry.stats
	}
	c.recordMiss()
	return nil
}

// SetStats fills the single stats slot.
func (c *ContentCache) SetStats(stats *domain.PostStats) {
	c.cleanupIfNeeded()

	c.statsMu.Lock()
	c.stats = &cachedStats{stats: stats, expiresAt: c.now().Add(c.config.StatsTTL)}
	c.statsMu.Unlock()
}

// InvalidatePost removes the post entry and clears every list and the stats
// slot. Lists carry no per-entry dependency tracking, so any of them might
// contain the mutated post; clearing them all trades efficiency for safety.
func (c *ContentCache) InvalidatePost(slug string) {
	c.postsMu.Lock()
	delete(c.posts, slug)
	c.postsMu.Unlock()

	c.listsMu.Lock()
	c.lists = make(map[string]cachedList)
	c.listsMu.Unlock()

	c.statsMu.Lock()
	c.stats = nil
	c.statsMu.Unlock()

	log.Debug().Str("slug", slug).Msg("invalidated cache for post")
}

// InvalidateAll clears every map. Used by the admin cache flush.
func (c *ContentCache) InvalidateAll() {
	c.postsMu.Lock()
	c.posts = make(map[string]cachedPost)
	c.postsMu.Unlock()

	c.listsMu.Lock()
	c.lists = make(map[string]cachedList)
	c.listsMu.Unlock()

	c.statsMu.Lock()
	c.stats = nil
	c.statsMu.Unlock()

	log.Info().Msg("invalidated all cache entries")
}

// Metrics returns a snapshot of the hit/miss counters and latency average.
func (c *ContentCache) Metrics() Metrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}

// RecordLatency folds a request duration sample into the moving average
// with a smoothing factor of 0.1. The first sample seeds the average.
func (c *ContentCache) RecordLatency(sampleMillis float64) {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()

	if c.metrics.AvgLatencyMillis == 0 {
		c.metrics.AvgLatencyMillis = sampleMillis
		return
	}
	c.metrics.AvgLatencyMillis = 0.9*c.metrics.AvgLatencyMillis + 0.1*sampleMillis
}

// EntryCounts reports the current size of each map, for monitoring.
func (c *ContentCache) EntryCounts() (posts, lists int, statsCached bool) {
	c.postsMu.RLock()
	posts = len(c.posts)
	c.postsMu.RUnlock()

	c.listsMu.RLock()
	lists = len(c.lists)
	c.listsMu.RUnlock()

	c.statsMu.RLock()
	statsCached = c.stats != nil
	c.statsMu.RUnlock()
	return posts, lists, statsCached
}

func (c *ContentCache) recordHit() {
	c.metricsMu.Lock()
	c.metrics.Hits++
	c.metrics.TotalRequests++
	c.metrics.HitRate = float64(c.metrics.Hits) / float64(c.metrics.TotalRequests) * 100
	c.metricsMu.Unlock()
}

func (c *ContentCache) recordMiss() {
	c.metricsMu.Lock()
	c.metrics.Misses++
	c.metrics.TotalRequests++
	c.metrics.HitRate = float64(c.metrics.Hits) / float64(c.metrics.TotalRequests) * 100
	c.metricsMu.Unlock()
}

// cleanupIfNeeded sweeps expired entries from all three maps, at most once
// per cleanup interval. Called from every mutating operation.
func (c *ContentCache) cleanupIfNeeded() {
	c.cleanupMu.Lock()
	if c.now().Sub(c.lastCleanup) <= c.config.CleanupInterval {
		c.cleanupMu.Unlock()
		return
	}
	c.lastCleanup = c.now()
	c.cleanupMu.Unlock()

	removed := 0
	now := c.now()

	c.postsMu.Lock()
	for slug, entry := range c.posts {
		if !now.Before(entry.expiresAt) {
			delete(c.posts, slug)
			removed++
		}
	}
	c.postsMu.Unlock()

	c.listsMu.Lock()
	for key, entry := range c.lists {
		if !now.Before(entry.expiresAt) {
			delete(c.lists, key)
			removed++
		}
	}
	c.listsMu.Unlock()

	c.statsMu.Lock()
	if c.stats != nil && !now.Before(c.stats.expiresAt) {
		c.stats = nil
		removed++
	}
	c.statsMu.Unlock()

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
}

// evictOldest removes the oldest quarter of entries by cache time, always at
// least one, so a full map can accept a new key. Caller holds the write lock.
func evictOldest[V any](entries map[string]V, cachedAt func(V) time.Time) {
	evictCount := len(entries) / 4
	if evictCount == 0 {
		evictCount = 1
	}

	type age struct {
		key string
		at  time.Time
	}
	ages := make([]age, 0, len(entries))
	for key, entry := range entries {
		ages = append(ages, age{key: key, at: cachedAt(entry)})
	}
	sort.Slice(ages, func(i, j int) bool { return ages[i].at.Before(ages[j].at) })

	for _, a := range ages[:evictCount] {
		delete(entries, a.key)
	}
	log.Debug().Int("evicted", evictCount).Msg("evicted oldest cache entries")
}
