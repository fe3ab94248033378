package domain

import (
	"context"

	"github.com/dropblog/dropblog/shared/dropbox"
)

// FileStore defines the interface for the remote file store the blog keeps
// its markdown in (e.g., Dropbox). This allows the storage layer to be
// decoupled from a specific client implementation.
type FileStore interface {
	TestConnection(ctx context.Context) (dropbox.AccountInfo, error)
	ListFolder(ctx context.Context, path string) (*dropbox.ListFolderResult, error)
	DownloadFile(ctx context.Context, path string) ([]byte, error)
	UploadFile(ctx context.Context, path string, content []byte) (*dropbox.FileMetadata, error)
	DeleteFile(ctx context.Context, path string) (*dropbox.FileMetadata, error)
	CreateFolder(ctx context.Context, path string) (*dropbox.FileMetadata, error)
}
