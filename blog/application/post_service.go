package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/cache"
	"github.com/dropblog/dropblog/shared/db"
)

// listAllPerPage is the page size used when the sync walks the whole mirror.
const listAllPerPage = 1 << 20

// PostService orchestrates the remote file store, the relational mirror and
// the content cache. Reads are served mirror-first through the cache; writes
// go to the remote store first, then refresh the mirror and invalidate.
type PostService struct {
	repo       domain.PostRepository
	remote     domain.RemotePostStore
	mediaRepo  domain.MediaRepository
	mediaStore domain.RemoteMediaStore
	markdown   MarkdownRenderer
	cache      *cache.ContentCache
	sqlDB      *sql.DB

	now func() time.Time
}

// NewPostService wires the service together.
func NewPostService(
	repo domain.PostRepository,
	remote domain.RemotePostStore,
	mediaRepo domain.MediaRepository,
	mediaStore domain.RemoteMediaStore,
	markdown MarkdownRenderer,
	contentCache *cache.ContentCache,
	sqlDB *sql.DB,
) *PostService {
	return &PostService{
		repo:       repo,
		remote:     remote,
		mediaRepo:  mediaRepo,
		mediaStore: mediaStore,
		markdown:   markdown,
		cache:      contentCache,
		sqlDB:      sqlDB,
		now:        time.Now,
	}
}

// CreatePostInput carries the fields of a new post. An empty slug is
// derived from the title.
type CreatePostInput struct {
	Title     string
	Slug      string
	Content   string
	Category  string
	Tags      []string
	Published bool
	Featured  bool
	Author    string
	Excerpt   string
}

// UpdatePostInput patches an existing post. Nil fields are left untouched.
type UpdatePostInput struct {
	Title     *string
	Content   *string
	Category  *string
	Tags      *[]string
	Published *bool
	Featured  *bool
	Author    *string
	Excerpt   *string
}

// GetPost returns a post by slug: cache first, then the mirror, then the
// remote store as a last resort for posts the mirror has not seen yet.
func (s *PostService) GetPost(ctx context.Context, slug string) (*domain.Post, error) {
	if cached := s.cache.GetPost(slug); cached != nil {
		return cached, nil
	}

	post, err := s.repo.GetPostBySlug(ctx, slug)
	if err == nil {
		s.cache.SetPost(slug, post)
		return post, nil
	}
	if !errors.Is(err, domain.ErrPostNotFound) {
		return nil, err
	}

	// Mirror miss; the remote store may still know the slug.
	stored, err := s.remote.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrPostNotFound
	}

	post, err = s.mirrorStoredPost(ctx, stored, false)
	if err != nil {
		return nil, err
	}

	s.cache.SetPost(slug, post)
	return post, nil
}

// ListPosts returns one page of posts plus the pre-pagination total,
// serving repeated queries from the cache.
func (s *PostService) ListPosts(ctx context.Context, filters domain.PostFilters) ([]*domain.Post, int, error) {
	key := cache.ListKey(filters)
	if posts, total, ok := s.cache.GetList(key); ok {
		return posts, total, nil
	}

	posts, total, err := s.repo.ListPosts(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	s.cache.SetList(key, posts, total)
	return posts, total, nil
}

// GetStats returns aggregate post counts, cached.
func (s *PostService) GetStats(ctx context.Context) (*domain.PostStats, error) {
	if cached := s.cache.GetStats(); cached != nil {
		return cached, nil
	}

	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetStats(stats)
	return stats, nil
}

// CreatePost writes a new post to the remote store and mirrors it. Drafts
// are posts created with Published false.
func (s *PostService) CreatePost(ctx context.Context, input CreatePostInput) (*domain.Post, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("post title cannot be empty")
	}

	slug := input.Slug
	if slug == "" {
		slug = GenerateSlug(input.Title)
	}
	if slug == "" {
		return nil, fmt.Errorf("cannot derive a slug from title %q", input.Title)
	}

	existing, err := s.remote.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSlugConflict, slug)
	}

	now := s.now().UTC()
	stored := &domain.StoredPost{
		Metadata: domain.PostMetadata{
			Title:     input.Title,
			Slug:      slug,
			CreatedAt: now,
			UpdatedAt: now,
			Category:  input.Category,
			Tags:      input.Tags,
			Published: input.Published,
			Author:    input.Author,
			Excerpt:   input.Excerpt,
		},
		Content: input.Content,
	}

	if err := s.remote.SavePost(ctx, stored, !input.Published); err != nil {
		return nil, err
	}

	post, err := s.mirrorStoredPost(ctx, stored, input.Featured)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePost(slug)
	log.Info().Str("slug", slug).Bool("published", input.Published).Msg("created post")
	return post, nil
}

// UpdatePost patches a post in place. Content and metadata changes stay in
// the post's current folder; flipping the published flag moves the file
// between folders.
func (s *PostService) UpdatePost(ctx context.Context, slug string, input UpdatePostInput) (*domain.Post, error) {
	stored, err := s.remote.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrPostNotFound
	}

	wasDraft := strings.Contains(stored.RemotePath, "/drafts/")

	if input.Title != nil {
		stored.Metadata.Title = *input.Title
	}
	if input.Content != nil {
		stored.Content = *input.Content
	}
	if input.Category != nil {
		stored.Metadata.Category = *input.Category
	}
	if input.Tags != nil {
		stored.Metadata.Tags = *input.Tags
	}
	if input.Author != nil {
		stored.Metadata.Author = *input.Author
	}
	if input.Excerpt != nil {
		stored.Metadata.Excerpt = *input.Excerpt
	}
	stored.Metadata.UpdatedAt = s.now().UTC()

	isDraft := wasDraft
	if input.Published != nil {
		stored.Metadata.Published = *input.Published
		isDraft = !*input.Published
	}

	switch {
	case wasDraft && !isDraft:
		// Save the updated content as a draft, then let the publish flow
		// move it so the draft copy is cleaned up.
		stored.Metadata.Published = false
		if err := s.remote.SavePost(ctx, stored, true); err != nil {
			return nil, err
		}
		if _, err := s.remote.PublishPost(ctx, slug); err != nil {
			return nil, err
		}
		stored, err = s.remote.GetPostBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, domain.ErrPostNotFound
		}
	case !wasDraft && isDraft:
		// Unpublish: write the draft copy first, then drop the published
		// file. DeletePost checks the published folder first.
		if err := s.remote.SavePost(ctx, stored, true); err != nil {
			return nil, err
		}
		if _, err := s.remote.DeletePost(ctx, slug); err != nil {
			return nil, err
		}
	default:
		if err := s.remote.SavePost(ctx, stored, isDraft); err != nil {
			return nil, err
		}
	}

	featured := false
	if existing, err := s.repo.GetPostBySlug(ctx, slug); err == nil {
		featured = existing.Featured
	}
	if input.Featured != nil {
		featured = *input.Featured
	}

	post, err := s.mirrorStoredPost(ctx, stored, featured)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePost(slug)
	return post, nil
}

// DeletePost removes a post everywhere: remote store, mirror and cache.
func (s *PostService) DeletePost(ctx context.Context, slug string) error {
	deleted, err := s.remote.DeletePost(ctx, slug)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrPostNotFound
	}

	if err := s.repo.DeletePost(ctx, slug); err != nil {
		return err
	}

	s.cache.InvalidatePost(slug)
	log.Info().Str("slug", slug).Msg("deleted post")
	return nil
}

// PublishPost moves a draft to the published folder and refreshes the
// mirror row.
func (s *PostService) PublishPost(ctx context.Context, slug string) (*domain.Post, error) {
	published, err := s.remote.PublishPost(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !published {
		return nil, domain.ErrPostNotFound
	}

	stored, err := s.remote.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrPostNotFound
	}

	featured := false
	if existing, err := s.repo.GetPostBySlug(ctx, slug); err == nil {
		featured = existing.Featured
	}

	post, err := s.mirrorStoredPost(ctx, stored, featured)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePost(slug)
	log.Info().Str("slug", slug).Msg("published post")
	return post, nil
}

// SyncFromRemote rebuilds the mirror from the remote store: every post in
// both folders is re-rendered and upserted, and mirror rows whose slug no
// longer exists remotely are dropped. The whole refresh runs in one
// transaction so readers never observe a half-synced mirror.
func (s *PostService) SyncFromRemote(ctx context.Context) (int, error) {
	publishedPosts, err := s.remote.ListPublishedPosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list published posts: %w", err)
	}
	draftPosts, err := s.remote.ListDraftPosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list draft posts: %w", err)
	}

	remote := make([]domain.StoredPost, 0, len(publishedPosts)+len(draftPosts))
	remote = append(remote, publishedPosts...)
	remote = append(remote, draftPosts...)

	seen := make(map[string]bool, len(remote))

	err = db.RunInTransaction(ctx, s.sqlDB, func(txCtx context.Context) error {
		for i := range remote {
			stored := &remote[i]
			// A slug stranded in both folders after a crashed publish
			// resolves to the published copy, which sorts first here.
			if seen[stored.Metadata.Slug] {
				continue
			}
			seen[stored.Metadata.Slug] = true

			featured := false
			if existing, err := s.repo.GetPostBySlug(txCtx, stored.Metadata.Slug); err == nil {
				featured = existing.Featured
			}

			if _, err := s.mirrorStoredPost(txCtx, stored, featured); err != nil {
				return err
			}
		}

		// Drop mirror rows for posts deleted remotely.
		perPage := listAllPerPage
		mirrored, _, err := s.repo.ListPosts(txCtx, domain.PostFilters{PerPage: &perPage})
		if err != nil {
			return err
		}
		for _, p := range mirrored {
			if !seen[p.Slug] {
				if err := s.repo.DeletePost(txCtx, p.Slug); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sync mirror: %w", err)
	}

	s.cache.InvalidateAll()
	log.Info().Int("posts", len(seen)).Msg("synced mirror from remote store")
	return len(seen), nil
}

// UploadMedia stores a media file remotely and records it in the mirror.
func (s *PostService) UploadMedia(ctx context.Context, filename string, content []byte) (*domain.MediaFile, error) {
	if filename == "" {
		return nil, fmt.Errorf("media filename cannot be empty")
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("media content cannot be empty")
	}

	file, err := s.mediaStore.UploadMedia(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	if err := s.mediaRepo.SaveMedia(ctx, file); err != nil {
		return nil, err
	}

	return file, nil
}

// ListMedia returns the known media records, newest first.
func (s *PostService) ListMedia(ctx context.Context) ([]*domain.MediaFile, error) {
	return s.mediaRepo.ListMedia(ctx)
}

// DeleteMedia removes a media file remotely and from the mirror.
func (s *PostService) DeleteMedia(ctx context.Context, path string) error {
	deleted, err := s.mediaStore.DeleteMedia(ctx, path)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrMediaNotFound
	}

	return s.mediaRepo.DeleteMedia(ctx, path)
}

// CacheMetrics exposes the cache counters for the admin surface.
func (s *PostService) CacheMetrics() cache.Metrics {
	return s.cache.Metrics()
}

// CacheEntryCounts reports the live size of each cache map.
func (s *PostService) CacheEntryCounts() (posts, lists int, statsCached bool) {
	return s.cache.EntryCounts()
}

// RecordRequestLatency folds one request duration into the cache's moving
// latency average.
func (s *PostService) RecordRequestLatency(d time.Duration) {
	s.cache.RecordLatency(float64(d.Microseconds()) / 1000.0)
}

// FlushCache clears every cached entry.
func (s *PostService) FlushCache() {
	s.cache.InvalidateAll()
}

// mirrorStoredPost renders a stored post to HTML and upserts its mirror
// row, preserving the row id of any existing row.
func (s *PostService) mirrorStoredPost(ctx context.Context, stored *domain.StoredPost, featured bool) (*domain.Post, error) {
	rendered, err := s.markdown.Render(stored.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", stored.Metadata.Slug, err)
	}

	excerpt := stored.Metadata.Excerpt
	if excerpt == "" {
		excerpt = rendered.Snippet
	}

	post := &domain.Post{
		ID:          uuid.NewString(),
		Slug:        stored.Metadata.Slug,
		Title:       stored.Metadata.Title,
		Content:     stored.Content,
		HTMLContent: rendered.HTML,
		Excerpt:     excerpt,
		Category:    stored.Metadata.Category,
		Tags:        stored.Metadata.Tags,
		Published:   stored.Metadata.Published,
		Featured:    featured,
		Author:      stored.Metadata.Author,
		RemotePath:  stored.RemotePath,
		CreatedAt:   stored.Metadata.CreatedAt,
		UpdatedAt:   stored.Metadata.UpdatedAt,
	}
	if post.Published {
		post.PublishedAt = stored.Metadata.CreatedAt
	}

	if err := s.repo.UpsertPost(ctx, post); err != nil {
		return nil, err
	}

	// Read the row back so callers see the surviving id and version.
	return s.repo.GetPostBySlug(ctx, post.Slug)
}
