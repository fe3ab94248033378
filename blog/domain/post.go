package domain

import (
	"context"
	"time"
)

// PostMetadata is the frontmatter-backed metadata of a markdown post.
type PostMetadata struct {
	Title     string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Category  string
	Tags      []string
	Published bool
	Author    string
	Excerpt   string
	// Extra holds frontmatter keys outside the known schema so that a
	// parse/render round trip never drops author-supplied fields.
	Extra map[string]any
}

// StoredPost is a post as it exists in the remote file store: decoded
// metadata, the markdown body, and the remote path it was read from or
// written to. It carries no identity beyond path + slug.
type StoredPost struct {
	Metadata   PostMetadata
	Content    string
	RemotePath string
}

// Post is the relational mirror of a blog post. The remote file store is
// authoritative for content; this row exists so posts can be queried and
// filtered without touching the remote API.
type Post struct {
	ID          string
	Slug        string
	Title       string
	Content     string
	HTMLContent string
	Excerpt     string
	Category    string
	Tags        []string
	Published   bool
	Featured    bool
	Author      string
	RemotePath  string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt time.Time // zero when the post has never been published
}

// PostFilters narrows a post listing. Nil fields are absent dimensions.
type PostFilters struct {
	Category  *string
	Tag       *string
	Published *bool
	Featured  *bool
	Page      *int
	PerPage   *int
}

// CategoryStat is a per-category post count.
type CategoryStat struct {
	Name  string
	Count int64
}

// PostStats aggregates counts over the relational mirror.
type PostStats struct {
	TotalPosts     int64
	PublishedPosts int64
	DraftPosts     int64
	FeaturedPosts  int64
	Categories     []CategoryStat
}

// PostRepository is the read/write contract against the relational mirror.
type PostRepository interface {
	UpsertPost(ctx context.Context, p *Post) error

	// GetPostBySlug returns ErrPostNotFound when no row exists.
	GetPostBySlug(ctx context.Context, slug string) (*Post, error)

	// ListPosts returns one page of posts plus the total count of rows
	// matching the filters before pagination.
	ListPosts(ctx context.Context, filters PostFilters) ([]*Post, int, error)

	DeletePost(ctx context.Context, slug string) error

	GetStats(ctx context.Context) (*PostStats, error)
}

// RemotePostStore is the post lifecycle contract against the remote file
// store. Implementations own the folder layout and the markdown encoding.
type RemotePostStore interface {
	// InitializeStructure creates any missing blog folders. Idempotent.
	InitializeStructure(ctx context.Context) error

	// ListPublishedPosts returns posts from the published folder whose
	// frontmatter marks them published, newest created_at first.
	ListPublishedPosts(ctx context.Context) ([]StoredPost, error)

	// ListDraftPosts returns every post in the drafts folder, newest
	// updated_at first. Folder membership is authoritative for draft
	// status; the published flag is ignored here.
	ListDraftPosts(ctx context.Context) ([]StoredPost, error)

	// GetPostBySlug searches published posts first, then drafts.
	// A nil result with nil error means the slug does not exist.
	GetPostBySlug(ctx context.Context, slug string) (*StoredPost, error)

	// SavePost encodes and uploads the post, overwriting any previous file.
	SavePost(ctx context.Context, post *StoredPost, isDraft bool) error

	// DeletePost removes the post from whichever folder holds it and
	// reports whether anything was deleted.
	DeletePost(ctx context.Context, slug string) (bool, error)

	// PublishPost moves a draft into the published folder, flipping its
	// published flag and refreshing updated_at. The write and the draft
	// delete are two remote calls; a crash between them leaves the slug
	// in both folders, and readers prefer the published copy until the
	// duplicate is cleaned up.
	PublishPost(ctx context.Context, slug string) (bool, error)
}
