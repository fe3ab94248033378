package api

import (
	"time"

	"github.com/dropblog/dropblog/blog/domain"
)

// Post is the wire representation of a blog post.
type Post struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	HTMLContent string    `json:"html_content,omitempty"`
	Excerpt     string    `json:"excerpt"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Published   bool      `json:"published"`
	Featured    bool      `json:"featured"`
	Author      string    `json:"author,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// PostSummary is the list-view shape: no bodies, just enough to render an
// index page.
type PostSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Excerpt   string    `json:"excerpt"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Published bool      `json:"published"`
	Featured  bool      `json:"featured"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostList is one page of posts plus pagination totals.
type PostList struct {
	Posts   []PostSummary `json:"posts"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// CreatePostRequest is the body of POST /posts.
type CreatePostRequest struct {
	Title     string   `json:"title" binding:"required"`
	Slug      string   `json:"slug"`
	Content   string   `json:"content"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Published bool     `json:"published"`
	Featured  bool     `json:"featured"`
	Author    string   `json:"author"`
	Excerpt   string   `json:"excerpt"`
}

// UpdatePostRequest is the body of PUT /posts/:slug. Absent fields are left
// unchanged.
type UpdatePostRequest struct {
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	Category  *string   `json:"category"`
	Tags      *[]string `json:"tags"`
	Published *bool     `json:"published"`
	Featured  *bool     `json:"featured"`
	Author    *string   `json:"author"`
	Excerpt   *string   `json:"excerpt"`
}

// CategoryStat is one category bucket in the stats payload.
type CategoryStat struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats is the aggregate post counts payload.
type Stats struct {
	TotalPosts     int64          `json:"total_posts"`
	PublishedPosts int64          `json:"published_posts"`
	DraftPosts     int64          `json:"draft_posts"`
	FeaturedPosts  int64          `json:"featured_posts"`
	Categories     []CategoryStat `json:"categories"`
}

// MediaFile is the wire representation of an uploaded media file.
type MediaFile struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SyncResult reports how many posts a mirror sync touched.
type SyncResult struct {
	SyncedPosts int `json:"synced_posts"`
}

// Error is the uniform error payload.
type Error struct {
	Error string `json:"error"`
}

// FromDomainPost converts a domain post to its wire shape.
func FromDomainPost(p *domain.Post) Post {
	return Post{
		ID:          p.ID,
		Slug:        p.Slug,
		Title:       p.Title,
		Content:     p.Content,
		HTMLContent: p.HTMLContent,
		Excerpt:     p.Excerpt,
		Category:    p.Category,
		Tags:        tagsOrEmpty(p.Tags),
		Published:   p.Published,
		Featured:    p.Featured,
		Author:      p.Author,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
}

// FromDomainPosts converts a page of domain posts to list summaries.
func FromDomainPosts(posts []*domain.Post, total, page, perPage int) PostList {
	summaries := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, PostSummary{
			Slug:      p.Slug,
			Title:     p.Title,
			Excerpt:   p.Excerpt,
			Category:  p.Category,
			Tags:      tagsOrEmpty(p.Tags),
			Published: p.Published,
			Featured:  p.Featured,
			Author:    p.Author,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return PostList{Posts: summaries, Total: total, Page: page, PerPage: perPage}
}

// FromDomainStats converts aggregate counts to their wire shape.
func FromDomainStats(s *domain.PostStats) Stats {
	categories := make([]CategoryStat, 0, len(s.Categories))
	for _, c := range s.Categories {
		categories = append(categories, CategoryStat{Name: c.Name, Count: c.Count})
	}
	return Stats{
		TotalPosts:     s.TotalPosts,
		PublishedPosts: s.PublishedPosts,
		DraftPosts:     s.DraftPosts,
		FeaturedPosts:  s.FeaturedPosts,
		Categories:     categories,
	}
}

// FromDomainMedia converts a media record to its wire shape.
func FromDomainMedia(m *domain.MediaFile) MediaFile {
	return MediaFile{
		Path:        m.Path,
		ContentHash: m.ContentHash,
		Size:        m.Size,
		ContentType: m.ContentType,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
