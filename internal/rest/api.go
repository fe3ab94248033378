package rest

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/internal/middleware"
)

// NewAPI mounts the blog API on router. Read endpoints are public; writes
// and the admin surface require the API key.
func NewAPI(router *gin.Engine, service *application.PostService, apiKey string) {
	h := &Handler{service: service}

	router.GET("/health", h.Health)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(latencyRecorder(service))
	{
		apiV1.GET("/posts", h.ListPosts)
		apiV1.GET("/posts/:slug", h.GetPost)
		apiV1.GET("/stats", h.GetStats)
		apiV1.GET("/media", h.ListMedia)
	}

	protected := apiV1.Group("", middleware.RequireAPIKey(apiKey))
	{
		protected.POST("/posts", h.CreatePost)
		protected.PUT("/posts/:slug", h.UpdatePost)
		protected.DELETE("/posts/:slug", h.DeletePost)
		protected.POST("/posts/:slug/publish", h.PublishPost)

		protected.POST("/media", h.UploadMedia)
		protected.DELETE("/media/*path", h.DeleteMedia)

		protected.POST("/admin/sync", h.Sync)
		protected.GET("/admin/cache/metrics", h.CacheMetrics)
		protected.POST("/admin/cache/clear", h.ClearCache)
	}
}

// Handler carries the service into the route handlers.
type Handler struct {
	service *application.PostService
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// latencyRecorder feeds request durations into the cache's moving average.
func latencyRecorder(service *application.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		service.RecordRequestLatency(time.Since(start))
	}
}
