package domain

import (
	"context"
	"time"
)

// MediaFile is the relational record of a file uploaded to the media folder.
// The bytes live in the remote store; this row is the queryable index.
type MediaFile struct {
	Path        string
	ContentHash string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

// RemoteMediaStore uploads and removes media files in the remote store's
// media folder.
type RemoteMediaStore interface {
	// UploadMedia writes content under the media folder and returns the
	// resulting record.
	UploadMedia(ctx context.Context, filename string, content []byte) (*MediaFile, error)

	// DeleteMedia removes a media file by remote path, reporting whether
	// anything existed to delete.
	DeleteMedia(ctx context.Context, path string) (bool, error)
}

type MediaRepository interface {
	// SaveMedia records an uploaded media file, replacing any prior record
	// at the same path.
	SaveMedia(ctx context.Context, m *MediaFile) error

	// GetMedia retrieves a media record by remote path.
	GetMedia(ctx context.Context, path string) (*MediaFile, error)

	// ListMedia returns all media records, newest first.
	ListMedia(ctx context.Context) ([]*MediaFile, error)

	// DeleteMedia removes the record for a remote path.
	DeleteMedia(ctx context.Context, path string) error
}
