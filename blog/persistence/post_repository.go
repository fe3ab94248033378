package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/db"
)

var _ domain.PostRepository = (*SQLitePostRepository)(nil)

// SQLitePostRepository implements domain.PostRepository over the SQLite
// mirror. The remote file store stays authoritative; rows here exist so
// listings and filters never hit the remote API.
type SQLitePostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new SQLitePostRepository from a standard sql.DB
func NewPostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{
		db: db,
	}
}

const upsertPostQuery = `
	INSERT INTO posts (id, slug, title, content, html_content, excerpt, category,
		tags, published, featured, author, remote_path, version, created_at, updated_at, published_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	ON CONFLICT(slug) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		html_content = excluded.html_content,
		excerpt = excluded.excerpt,
		category = excluded.category,
		tags = excluded.tags,
		published = excluded.published,
		featured = excluded.featured,
		author = excluded.author,
		remote_path = excluded.remote_path,
		version = posts.version + 1,
		created_at = COALESCE(posts.created_at, excluded.created_at),
		updated_at = excluded.updated_at,
		published_at = excluded.published_at
`

// UpsertPost inserts or refreshes the mirror row keyed by slug. The row id
// and created_at of an existing row survive the update; the version counter
// bumps on every refresh.
func (r *SQLitePostRepository) UpsertPost(ctx context.Context, p *domain.Post) error {
	if p == nil {
		return fmt.Errorf("post cannot be nil")
	}

	if p.Slug == "" {
		return fmt.Errorf("post slug cannot be empty")
	}

	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	if p.Tags == nil {
		tags = []byte("[]")
	}

	var publishedAt any
	if !p.PublishedAt.IsZero() {
		publishedAt = p.PublishedAt
	}

	executor := db.GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, upsertPostQuery,
		p.ID,
		p.Slug,
		p.Title,
		p.Content,
		p.HTMLContent,
		p.Excerpt,
		p.Category,
		string(tags),
		p.Published,
		p.Featured,
		p.Author,
		p.RemotePath,
		p.CreatedAt,
		p.UpdatedAt,
		publishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post: %w", err)
	}

	return nil
}

const selectPostColumns = `
	SELECT id, slug, title, content, html_content, excerpt, category,
		tags, published, featured, author, remote_path, version,
		created_at, updated_at, published_at
	FROM posts
`

// GetPostBySlug retrieves a single post by slug.
func (r *SQLitePostRepository) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	if slug == "" {
		return nil, fmt.Errorf("post slug cannot be empty")
	}

	executor := db.GetExecutor(ctx, r.db)
	row := executor.QueryRowContext(ctx, selectPostColumns+" WHERE slug = ?", slug)

	post, err := scanPost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return post, nil
}

// ListPosts returns one page of posts matching the filters plus the total
// match count before pagination. Published listings come back newest
// created_at first; draft-only listings newest updated_at first. Slug
// breaks ties so paging is stable.
func (r *SQLitePostRepository) ListPosts(ctx context.Context, filters domain.PostFilters) ([]*domain.Post, int, error) {
	where, args := buildPostFilters(filters)

	executor := db.GetExecutor(ctx, r.db)

	var total int
	countQuery := "SELECT COUNT(*) FROM posts" + where
	if err := executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	orderBy := " ORDER BY created_at DESC, slug ASC"
	if filters.Published != nil && !*filters.Published {
		orderBy = " ORDER BY updated_at DESC, slug ASC"
	}

	page := 1
	if filters.Page != nil && *filters.Page > 0 {
		page = *filters.Page
	}
	perPage := 10
	if filters.PerPage != nil && *filters.PerPage > 0 {
		perPage = *filters.PerPage
	}

	query := selectPostColumns + where + orderBy + " LIMIT ? OFFSET ?"
	queryArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)

	rows, err := executor.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, post)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, total, nil
}

// DeletePost removes the mirror row for a slug. Deleting an absent slug is
// not an error; the mirror converges on remote state either way.
func (r *SQLitePostRepository) DeletePost(ctx context.Context, slug string) error {
	if slug == "" {
		return fmt.Errorf("post slug cannot be empty")
	}

	executor := db.GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, "DELETE FROM posts WHERE slug = ?", slug); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	return nil
}

const statsQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN published THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT published THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN featured THEN 1 ELSE 0 END), 0)
	FROM posts
`

const categoryStatsQuery = `
	SELECT category, COUNT(*)
	FROM posts
	WHERE category != ''
	GROUP BY category
	ORDER BY COUNT(*) DESC, category ASC
`

// GetStats aggregates post counts and per-category counts over the mirror.
func (r *SQLitePostRepository) GetStats(ctx context.Context) (*domain.PostStats, error) {
	executor := db.GetExecutor(ctx, r.db)

	stats := &domain.PostStats{}
	err := executor.QueryRowContext(ctx, statsQuery).Scan(
		&stats.TotalPosts,
		&stats.PublishedPosts,
		&stats.DraftPosts,
		&stats.FeaturedPosts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate post stats: %w", err)
	}

	rows, err := executor.QueryContext(ctx, categoryStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat domain.CategoryStat
		if err := rows.Scan(&cat.Name, &cat.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		stats.Categories = append(stats.Categories, cat)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return stats, nil
}

// buildPostFilters turns the filter set into a WHERE clause plus args. The
// tag filter matches against the JSON-encoded tags column; quoting the tag
// keeps "go" from matching "golang".
func buildPostFilters(filters domain.PostFilters) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filters.Category != nil {
		clauses = append(clauses, "category = ?")
		args = append(args, *filters.Category)
	}
	if filters.Tag != nil {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, `%"`+*filters.Tag+`"%`)
	}
	if filters.Published != nil {
		clauses = append(clauses, "published = ?")
		args = append(args, *filters.Published)
	}
	if filters.Featured != nil {
		clauses = append(clauses, "featured = ?")
		args = append(args, *filters.Featured)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanPost(scan func(dest ...any) error) (*domain.Post, error) {
	var (
		post        domain.Post
		tags        string
		publishedAt sql.NullTime
	)

	err := scan(
		&post.ID,
		&post.Slug,
		&post.Title,
		&post.Content,
		&post.HTMLContent,
		&post.Excerpt,
		&post.Category,
		&tags,
		&post.Published,
		&post.Featured,
		&post.Author,
		&post.RemotePath,
		&post.Version,
		&post.CreatedAt,
		&post.UpdatedAt,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &post.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for %s: %w", post.Slug, err)
	}
	if publishedAt.Valid {
		post.PublishedAt = publishedAt.Time
	}

	return &post, nil
}
