package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dropblog/dropblog/api"
)

// Sync rebuilds the relational mirror from the remote file store.
func (h *Handler) Sync(c *gin.Context) {
	count, err := h.service.SyncFromRemote(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error{Error: "sync failed"})
		return
	}

	c.JSON(http.StatusOK, api.SyncResult{SyncedPosts: count})
}

func (h *Handler) CacheMetrics(c *gin.Context) {
	metrics := h.service.CacheMetrics()
	posts, lists, statsCached := h.service.CacheEntryCounts()

	c.JSON(http.StatusOK, api.CacheMetrics{
		TotalRequests:    metrics.TotalRequests,
		Hits:             metrics.Hits,
		Misses:           metrics.Misses,
		HitRate:          metrics.HitRate,
		AvgLatencyMillis: metrics.AvgLatencyMillis,
		CachedPosts:      posts,
		CachedLists:      lists,
		StatsCached:      statsCached,
	})
}

func (h *Handler) ClearCache(c *gin.Context) {
	h.service.FlushCache()
	c.Status(http.StatusNoContent)
}
