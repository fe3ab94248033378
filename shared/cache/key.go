package cache

import (
	"strconv"
	"strings"

	"github.com/dropblog/dropblog/blog/domain"
)

// allPostsKey is the sentinel for an unfiltered listing.
const allPostsKey = "all_posts"

// ListKey builds the canonical cache key for a list query. Present filter
// dimensions are concatenated in a fixed order so equivalent filter sets
// always map to the same key and distinct sets never collide.
func ListKey(f domain.PostFilters) string {
	parts := make([]string, 0, 6)
	if f.Category != nil {
		parts = append(parts, "cat:"+*f.Category)
	}
	if f.Tag != nil {
		parts = append(parts, "tag:"+*f.Tag)
	}
	if f.Published != nil {
		parts = append(parts, "pub:"+strconv.FormatBool(*f.Published))
	}
	if f.Featured != nil {
		parts = append(parts, "feat:"+strconv.FormatBool(*f.Featured))
	}
	if f.Page != nil {
		parts = append(parts, "page:"+strconv.Itoa(*f.Page))
	}
	if f.PerPage != nil {
		parts = append(parts, "per_page:"+strconv.Itoa(*f.PerPage))
	}

	if len(parts) == 0 {
		return allPostsKey
	}
	return strings.Join(parts, ":")
}
