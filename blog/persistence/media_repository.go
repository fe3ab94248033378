package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/db"
)

var _ domain.MediaRepository = (*SQLiteMediaRepository)(nil)

// SQLiteMediaRepository tracks media files known to the blog. The bytes
// themselves live in the remote file store; rows here carry the content
// hash so re-uploads of unchanged files can be skipped.
type SQLiteMediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new SQLiteMediaRepository from a standard sql.DB
func NewMediaRepository(sqlDB *sql.DB) *SQLiteMediaRepository {
	return &SQLiteMediaRepository{
		db: sqlDB,
	}
}

const upsertMediaQuery = `
	INSERT INTO media (path, hash, size, content_type, updated_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		hash = excluded.hash,
		size = excluded.size,
		content_type = excluded.content_type,
		updated_at = excluded.updated_at,
		created_at = COALESCE(media.created_at, excluded.created_at)
`

// SaveMedia upserts the record for a media file keyed by remote path.
func (r *SQLiteMediaRepository) SaveMedia(ctx context.Context, m *domain.MediaFile) error {
	if m == nil {
		return fmt.Errorf("media file cannot be nil")
	}

	if m.Path == "" {
		return fmt.Errorf("media path cannot be empty")
	}

	var updatedAt, createdAt any
	if !m.UpdatedAt.IsZero() {
		updatedAt = m.UpdatedAt
	}
	if !m.CreatedAt.IsZero() {
		createdAt = m.CreatedAt
	}

	executor := db.GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, upsertMediaQuery,
		m.Path,
		m.ContentHash,
		m.Size,
		m.ContentType,
		updatedAt,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert media record: %w", err)
	}

	return nil
}

const getMediaQuery = `
	SELECT path, hash, size, content_type, updated_at, created_at
	FROM media
	WHERE path = ?
`

// GetMedia retrieves a single media record by path.
func (r *SQLiteMediaRepository) GetMedia(ctx context.Context, path string) (*domain.MediaFile, error) {
	if path == "" {
		return nil, fmt.Errorf("media path cannot be empty")
	}

	executor := db.GetExecutor(ctx, r.db)

	var row mediaRow
	err := executor.QueryRowContext(ctx, getMediaQuery, path).Scan(
		&row.Path,
		&row.Hash,
		&row.Size,
		&row.ContentType,
		&row.UpdatedAt,
		&row.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrMediaNotFound, path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}

	return row.toDomain(), nil
}

const listMediaQuery = `
	SELECT path, hash, size, content_type, updated_at, created_at
	FROM media
	ORDER BY updated_at DESC, path ASC
`

// ListMedia returns every media record, most recently updated first.
func (r *SQLiteMediaRepository) ListMedia(ctx context.Context) ([]*domain.MediaFile, error) {
	executor := db.GetExecutor(ctx, r.db)

	rows, err := executor.QueryContext(ctx, listMediaQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	files := make([]*domain.MediaFile, 0)
	for rows.Next() {
		var row mediaRow
		err := rows.Scan(
			&row.Path,
			&row.Hash,
			&row.Size,
			&row.ContentType,
			&row.UpdatedAt,
			&row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		files = append(files, row.toDomain())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media rows: %w", err)
	}

	return files, nil
}

// DeleteMedia removes a media record by path.
func (r *SQLiteMediaRepository) DeleteMedia(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("media path cannot be empty")
	}

	executor := db.GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, "DELETE FROM media WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete media record: %w", err)
	}

	return nil
}

// mediaRow is a private struct used to scan database rows
type mediaRow struct {
	Path        string
	Hash        string
	Size        int64
	ContentType string
	UpdatedAt   sql.NullTime
	CreatedAt   sql.NullTime
}

// toDomain converts a mediaRow to a domain.MediaFile, handling nullable times
func (mr *mediaRow) toDomain() *domain.MediaFile {
	m := &domain.MediaFile{
		Path:        mr.Path,
		ContentHash: mr.Hash,
		Size:        mr.Size,
		ContentType: mr.ContentType,
	}

	if mr.UpdatedAt.Valid {
		m.UpdatedAt = mr.UpdatedAt.Time
	}
	if mr.CreatedAt.Valid {
		m.CreatedAt = mr.CreatedAt.Time
	}

	return m
}
