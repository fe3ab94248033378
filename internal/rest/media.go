package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dropblog/dropblog/api"
	"github.com/dropblog/dropblog/blog/domain"
)

// maxMediaBytes caps a single upload at 25 MiB.
const maxMediaBytes = 25 << 20

func (h *Handler) ListMedia(c *gin.Context) {
	files, err := h.service.ListMedia(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to list media"})
		return
	}

	out := make([]api.MediaFile, 0, len(files))
	for _, f := range files {
		out = append(out, api.FromDomainMedia(f))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UploadMedia(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: "multipart field 'file' is required"})
		return
	}
	if header.Size > maxMediaBytes {
		c.JSON(http.StatusRequestEntityTooLarge, api.Error{Error: "file exceeds the upload limit"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: "failed to read uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxMediaBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Error: "failed to read uploaded file"})
		return
	}
	if len(content) > maxMediaBytes {
		c.JSON(http.StatusRequestEntityTooLarge, api.Error{Error: "file exceeds the upload limit"})
		return
	}

	saved, err := h.service.UploadMedia(c.Request.Context(), header.Filename, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to upload media"})
		return
	}

	c.JSON(http.StatusCreated, api.FromDomainMedia(saved))
}

func (h *Handler) DeleteMedia(c *gin.Context) {
	// The wildcard param keeps its leading slash, which is also how remote
	// paths are stored.
	path := c.Param("path")
	if strings.TrimPrefix(path, "/") == "" {
		c.JSON(http.StatusBadRequest, api.Error{Error: "media path is required"})
		return
	}

	if err := h.service.DeleteMedia(c.Request.Context(), path); err != nil {
		if errors.Is(err, domain.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, api.Error{Error: "media file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.Error{Error: "failed to delete media"})
		return
	}

	c.Status(http.StatusNoContent)
}
