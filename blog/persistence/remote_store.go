package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/dropbox"
	"github.com/dropblog/dropblog/shared/ratelimit"
	"github.com/dropblog/dropblog/shared/retry"
)

var (
	_ domain.RemotePostStore  = (*DropboxPostStore)(nil)
	_ domain.RemoteMediaStore = (*DropboxPostStore)(nil)
)

// Folders is the remote folder layout the blog lives in.
type Folders struct {
	Root      string
	Posts     string
	Drafts    string
	Media     string
	Templates string
	Config    string
}

// DefaultFolders lays out the blog folders under the given root.
func DefaultFolders(root string) Folders {
	root = "/" + strings.Trim(root, "/")
	return Folders{
		Root:      root,
		Posts:     root + "/posts",
		Drafts:    root + "/drafts",
		Media:     root + "/media",
		Templates: root + "/templates",
		Config:    root + "/config",
	}
}

// DropboxPostStore implements domain.RemotePostStore on top of a FileStore.
// Every remote call goes through the shared rate limiter, and transient
// failures are retried with backoff. Posts are markdown files named
// <slug>.md; the folder a file sits in decides whether it is a draft.
type DropboxPostStore struct {
	store   domain.FileStore
	limiter *ratelimit.Limiter
	folders Folders
	policy  retry.Policy

	now func() time.Time
}

// NewDropboxPostStore wires a FileStore, the shared rate limiter and a
// folder layout into a post store.
func NewDropboxPostStore(store domain.FileStore, limiter *ratelimit.Limiter, folders Folders) *DropboxPostStore {
	return &DropboxPostStore{
		store:   store,
		limiter: limiter,
		folders: folders,
		policy:  retry.DefaultPolicy(),
		now:     time.Now,
	}
}

// InitializeStructure creates the blog folders if they are missing. An
// already-existing folder comes back as a conflict and counts as success.
func (s *DropboxPostStore) InitializeStructure(ctx context.Context) error {
	folders := []string{
		s.folders.Root,
		s.folders.Posts,
		s.folders.Drafts,
		s.folders.Media,
		s.folders.Media + "/images",
		s.folders.Media + "/videos",
		s.folders.Templates,
		s.folders.Config,
	}
	for _, folder := range folders {
		_, err := s.createFolder(ctx, folder)
		if err != nil && !errors.Is(err, dropbox.ErrConflict) {
			return fmt.Errorf("failed to create folder %s: %w", folder, err)
		}
	}

	log.Info().Str("root", s.folders.Root).Msg("remote folder structure ready")
	return nil
}

// ListPublishedPosts returns the posts in the published folder whose
// frontmatter marks them published, newest created_at first.
func (s *DropboxPostStore) ListPublishedPosts(ctx context.Context) ([]domain.StoredPost, error) {
	posts, err := s.loadFolder(ctx, s.folders.Posts)
	if err != nil {
		return nil, err
	}

	published := posts[:0]
	for _, p := range posts {
		if p.Metadata.Published {
			published = append(published, p)
		}
	}

	sort.Slice(published, func(i, j int) bool {
		a, b := published[i].Metadata, published[j].Metadata
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Slug < b.Slug
	})

	return published, nil
}

// ListDraftPosts returns everything in the drafts folder, newest updated_at
// first. Folder membership decides draft status, not the published flag.
func (s *DropboxPostStore) ListDraftPosts(ctx context.Context) ([]domain.StoredPost, error) {
	drafts, err := s.loadFolder(ctx, s.folders.Drafts)
	if err != nil {
		return nil, err
	}

	sort.Slice(drafts, func(i, j int) bool {
		a, b := drafts[i].Metadata, drafts[j].Metadata
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Slug < b.Slug
	})

	return drafts, nil
}

// GetPostBySlug looks in the published folder first, then drafts. A slug
// present in both folders resolves to the published copy. Absence is a nil
// result, not an error.
//
// The slug of a post is whatever its frontmatter says, not its file name.
// System-written files are named <slug>.md, so a direct download is tried
// first; remote-authored files are named freely, so a miss falls back to
// scanning the folder listings for a frontmatter match.
func (s *DropboxPostStore) GetPostBySlug(ctx context.Context, slug string) (*domain.StoredPost, error) {
	for _, folder := range []string{s.folders.Posts, s.folders.Drafts} {
		post, err := s.loadPost(ctx, s.postPath(folder, slug))
		if err == nil && post.Metadata.Slug == slug {
			return post, nil
		}
		if err != nil && !errors.Is(err, dropbox.ErrNotFound) {
			return nil, err
		}
	}

	for _, list := range []func(context.Context) ([]domain.StoredPost, error){
		s.ListPublishedPosts,
		s.ListDraftPosts,
	} {
		posts, err := list(ctx)
		if err != nil {
			return nil, err
		}
		for i := range posts {
			if posts[i].Metadata.Slug == slug {
				return &posts[i], nil
			}
		}
	}

	return nil, nil
}

// SavePost encodes the post and uploads it, overwriting any previous file
// with the same slug in the target folder.
func (s *DropboxPostStore) SavePost(ctx context.Context, post *domain.StoredPost, isDraft bool) error {
	doc, err := application.RenderPost(post.Metadata, post.Content)
	if err != nil {
		return fmt.Errorf("failed to encode post %s: %w", post.Metadata.Slug, err)
	}

	folder := s.folders.Posts
	if isDraft {
		folder = s.folders.Drafts
	}
	remotePath := s.postPath(folder, post.Metadata.Slug)

	if _, err := s.upload(ctx, remotePath, []byte(doc)); err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.Metadata.Slug, err)
	}

	post.RemotePath = remotePath
	return nil
}

// DeletePost removes the post from whichever folder holds it, trying
// published first. It reports whether anything was deleted.
func (s *DropboxPostStore) DeletePost(ctx context.Context, slug string) (bool, error) {
	for _, folder := range []string{s.folders.Posts, s.folders.Drafts} {
		_, err := s.deleteFile(ctx, s.postPath(folder, slug))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, dropbox.ErrNotFound) {
			return false, fmt.Errorf("failed to delete post %s: %w", slug, err)
		}
	}

	return false, nil
}

// PublishPost moves a draft to the published folder: the copy is written
// first, then the draft is deleted. A crash between the two calls leaves the
// slug in both folders; GetPostBySlug prefers the published copy, and the
// next successful publish or delete cleans the leftover up.
func (s *DropboxPostStore) PublishPost(ctx context.Context, slug string) (bool, error) {
	draftPath := s.postPath(s.folders.Drafts, slug)
	draft, err := s.loadPost(ctx, draftPath)
	if errors.Is(err, dropbox.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	draft.Metadata.Published = true
	draft.Metadata.UpdatedAt = s.now().UTC()

	if err := s.SavePost(ctx, draft, false); err != nil {
		return false, err
	}

	if _, err := s.deleteFile(ctx, draftPath); err != nil && !errors.Is(err, dropbox.ErrNotFound) {
		return false, fmt.Errorf("published %s but failed to remove draft: %w", slug, err)
	}

	return true, nil
}

// UploadMedia writes content into the media folder, overwriting any file
// with the same name, and returns the record to mirror.
func (s *DropboxPostStore) UploadMedia(ctx context.Context, filename string, content []byte) (*domain.MediaFile, error) {
	remotePath := s.folders.Media + "/" + path.Base(filename)

	metadata, err := s.upload(ctx, remotePath, content)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media %s: %w", filename, err)
	}

	hash := metadata.ContentHash
	if hash == "" {
		sum := sha256.Sum256(content)
		hash = hex.EncodeToString(sum[:])
	}
	size := metadata.Size
	if size == 0 {
		size = int64(len(content))
	}

	now := s.now().UTC()
	return &domain.MediaFile{
		Path:        remotePath,
		ContentHash: hash,
		Size:        size,
		ContentType: mime.TypeByExtension(path.Ext(filename)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DeleteMedia removes a media file, reporting whether it existed.
func (s *DropboxPostStore) DeleteMedia(ctx context.Context, remotePath string) (bool, error) {
	_, err := s.deleteFile(ctx, remotePath)
	if errors.Is(err, dropbox.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete media %s: %w", remotePath, err)
	}
	return true, nil
}

// loadFolder downloads and decodes every markdown file in a folder. Files
// that fail to download or decode are skipped with a warning so one bad
// file cannot take down a whole listing.
func (s *DropboxPostStore) loadFolder(ctx context.Context, folder string) ([]domain.StoredPost, error) {
	listing, err := s.listFolder(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folder, err)
	}

	posts := make([]domain.StoredPost, 0, len(listing.Entries))
	for _, entry := range listing.Entries {
		if !isMarkdownFile(entry.Name) {
			continue
		}

		remotePath := entry.PathDisplay
		if remotePath == "" {
			remotePath = entry.PathLower
		}

		post, err := s.loadPost(ctx, remotePath)
		if err != nil {
			log.Warn().Err(err).Str("path", remotePath).Msg("skipping unreadable post")
			continue
		}
		posts = append(posts, *post)
	}

	return posts, nil
}

// loadPost downloads a single markdown file and decodes its frontmatter.
func (s *DropboxPostStore) loadPost(ctx context.Context, remotePath string) (*domain.StoredPost, error) {
	raw, err := s.download(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	block, body, _ := application.SplitFrontmatter(string(raw))
	fallbackTitle := strings.TrimSuffix(path.Base(remotePath), path.Ext(remotePath))

	meta, err := application.ParseMetadata(block, fallbackTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", remotePath, err)
	}

	return &domain.StoredPost{
		Metadata:   meta,
		Content:    body,
		RemotePath: remotePath,
	}, nil
}

func (s *DropboxPostStore) postPath(folder, slug string) string {
	return folder + "/" + slug + ".md"
}

func isMarkdownFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// The wrappers below put every remote call behind the rate limiter and the
// retry policy. The limiter slot is acquired per attempt so a retrying call
// does not hold budget while it sleeps.

func (s *DropboxPostStore) listFolder(ctx context.Context, folder string) (*dropbox.ListFolderResult, error) {
	var result *dropbox.ListFolderResult
	err := retry.Do(ctx, s.policy, "list "+folder, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		result, err = s.store.ListFolder(ctx, folder)
		return err
	})
	return result, err
}

func (s *DropboxPostStore) download(ctx context.Context, remotePath string) ([]byte, error) {
	var content []byte
	err := retry.Do(ctx, s.policy, "download "+remotePath, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		content, err = s.store.DownloadFile(ctx, remotePath)
		return err
	})
	return content, err
}

func (s *DropboxPostStore) upload(ctx context.Context, remotePath string, content []byte) (*dropbox.FileMetadata, error) {
	var metadata *dropbox.FileMetadata
	err := retry.Do(ctx, s.policy, "upload "+remotePath, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		metadata, err = s.store.UploadFile(ctx, remotePath, content)
		return err
	})
	return metadata, err
}

func (s *DropboxPostStore) deleteFile(ctx context.Context, remotePath string) (*dropbox.FileMetadata, error) {
	var metadata *dropbox.FileMetadata
	err := retry.Do(ctx, s.policy, "delete "+remotePath, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		metadata, err = s.store.DeleteFile(ctx, remotePath)
		return err
	})
	return metadata, err
}

func (s *DropboxPostStore) createFolder(ctx context.Context, folder string) (*dropbox.FileMetadata, error) {
	var metadata *dropbox.FileMetadata
	err := retry.Do(ctx, s.policy, "create folder "+folder, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		var err error
		metadata, err = s.store.CreateFolder(ctx, folder)
		return err
	})
	return metadata, err
}
