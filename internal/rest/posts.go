package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dropblog/dropblog/api"
	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/blog/domain"
)

const (
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 100
)

func (h *Handler) ListPosts(c *gin.Context) {
	filters, page, perPage, err := parseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: err.Error()})
		return
	}

	posts, total, err := h.service.ListPosts(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to list posts"})
		return
	}

	c.JSON(http.StatusOK, api.FromDomainPosts(posts, total, page, perPage))
}

func (h *Handler) GetPost(c *gin.Context) {
	slug := c.Param("slug")

	post, err := h.service.GetPost(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, api.Error{Error: "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to fetch post"})
		return
	}

	c.JSON(http.StatusOK, api.FromDomainPost(post))
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req api.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: err.Error()})
		return
	}

	post, err := h.service.CreatePost(c.Request.Context(), application.CreatePostInput{
		Title:     req.Title,
		Slug:      req.Slug,
		Content:   req.Content,
		Category:  req.Category,
		Tags:      req.Tags,
		Published: req.Published,
		Featured:  req.Featured,
		Author:    req.Author,
		Excerpt:   req.Excerpt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlugConflict) {
			c.JSON(http.StatusConflict, api.Error{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to create post"})
		return
	}

	c.JSON(http.StatusCreated, api.FromDomainPost(post))
}

func (h *Handler) UpdatePost(c *gin.Context) {
	slug := c.Param("slug")

	var req api.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: err.Error()})
		return
	}

	post, err := h.service.UpdatePost(c.Request.Context(), slug, application.UpdatePostInput{
		Title:     req.Title,
		Content:   req.Content,
		Category:  req.Category,
		Tags:      req.Tags,
		Published: req.Published,
		Featured:  req.Featured,
		Author:    req.Author,
		Excerpt:   req.Excerpt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, api.Error{Error: "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to update post"})
		return
	}

	c.JSON(http.StatusOK, api.FromDomainPost(post))
}

func (h *Handler) DeletePost(c *gin.Context) {
	slug := c.Param("slug")

	if err := h.service.DeletePost(c.Request.Context(), slug); err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, api.Error{Error: "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to delete post"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) PublishPost(c *gin.Context) {
	slug := c.Param("slug")

	post, err := h.service.PublishPost(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, api.Error{Error: "no draft with that slug"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to publish post"})
		return
	}

	c.JSON(http.StatusOK, api.FromDomainPost(post))
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, api.FromDomainStats(stats))
}

// parseFilters reads the list query parameters. Unknown parameters are
// ignored; malformed ones are an error.
func parseFilters(c *gin.Context) (domain.PostFilters, int, int, error) {
	filters := domain.PostFilters{}

	if category := c.Query("category"); category != "" {
		filters.Category = &category
	}
	if tag := c.Query("tag"); tag != "" {
		filters.Tag = &tag
	}

	if raw := c.Query("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, 0, 0, errors.New("published must be true or false")
		}
		filters.Published = &published
	}
	if raw := c.Query("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, 0, 0, errors.New("featured must be true or false")
		}
		filters.Featured = &featured
	}

	page := defaultPage
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return filters, 0, 0, errors.New("page must be a positive integer")
		}
		page = parsed
	}
	filters.Page = &page

	perPage := defaultPerPage
	if raw := c.Query("per_page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return filters, 0, 0, errors.New("per_page must be a positive integer")
		}
		if parsed > maxPerPage {
			parsed = maxPerPage
		}
		perPage = parsed
	}
	filters.PerPage = &perPage

	return filters, page, perPage, nil
}
