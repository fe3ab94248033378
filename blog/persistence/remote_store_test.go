package persistence

import (
	"context"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/dropbox"
	"github.com/dropblog/dropblog/shared/ratelimit"
	"github.com/dropblog/dropblog/shared/retry"
)

// fakeFileStore is an in-memory FileStore. Paths can be primed to fail a
// number of times with a server error to exercise the retry path.
type fakeFileStore struct {
	mu       sync.Mutex
	files    map[string]string
	folders  map[string]bool
	failures map[string]int
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		files:    make(map[string]string),
		folders:  make(map[string]bool),
		failures: make(map[string]int),
	}
}

func notFoundErr(op, p string) error {
	return &dropbox.APIError{Op: op, Path: p, StatusCode: 409, Summary: "path/not_found/."}
}

func (f *fakeFileStore) TestConnection(ctx context.Context) (dropbox.AccountInfo, error) {
	return dropbox.AccountInfo{"email": "test@example.com"}, nil
}

func (f *fakeFileStore) ListFolder(ctx context.Context, folder string) (*dropbox.ListFolderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := &dropbox.ListFolderResult{}
	for p := range f.files {
		if path.Dir(p) == folder {
			result.Entries = append(result.Entries, dropbox.FileMetadata{
				Name:        path.Base(p),
				PathLower:   p,
				PathDisplay: p,
			})
		}
	}
	sort.Slice(result.Entries, func(i, j int) bool { return result.Entries[i].Name < result.Entries[j].Name })
	return result, nil
}

func (f *fakeFileStore) DownloadFile(ctx context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures[p] > 0 {
		f.failures[p]--
		return nil, &dropbox.APIError{Op: "download file", Path: p, StatusCode: 500, Summary: "internal_error"}
	}

	content, ok := f.files[p]
	if !ok {
		return nil, notFoundErr("download file", p)
	}
	return []byte(content), nil
}

func (f *fakeFileStore) UploadFile(ctx context.Context, p string, content []byte) (*dropbox.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[p] = string(content)
	return &dropbox.FileMetadata{Name: path.Base(p), PathDisplay: p}, nil
}

func (f *fakeFileStore) DeleteFile(ctx context.Context, p string) (*dropbox.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[p]; !ok {
		return nil, notFoundErr("delete file", p)
	}
	delete(f.files, p)
	return &dropbox.FileMetadata{Name: path.Base(p), PathDisplay: p}, nil
}

func (f *fakeFileStore) CreateFolder(ctx context.Context, p string) (*dropbox.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.folders[p] {
		return nil, &dropbox.APIError{Op: "create folder", Path: p, StatusCode: 409, Summary: "path/conflict/folder/."}
	}
	f.folders[p] = true
	return &dropbox.FileMetadata{Name: path.Base(p), PathDisplay: p}, nil
}

func newTestStore(fs *fakeFileStore) *DropboxPostStore {
	store := NewDropboxPostStore(fs, ratelimit.NewLimiter(1000, time.Minute), DefaultFolders("/BlogStorage"))
	store.policy = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	return store
}

func renderDoc(t *testing.T, meta domain.PostMetadata, body string) string {
	t.Helper()
	doc, err := application.RenderPost(meta, body)
	if err != nil {
		t.Fatalf("failed to render post: %v", err)
	}
	return doc
}

func storedMeta(slug string, created time.Time, published bool) domain.PostMetadata {
	return domain.PostMetadata{
		Title:     "Post " + slug,
		Slug:      slug,
		CreatedAt: created,
		UpdatedAt: created,
		Published: published,
	}
}

func TestInitializeStructureIdempotent(t *testing.T) {
	fs := newFakeFileStore()
	store := newTestStore(fs)
	ctx := context.Background()

	if err := store.InitializeStructure(ctx); err != nil {
		t.Fatalf("first InitializeStructure failed: %v", err)
	}
	// Second run hits conflicts for every folder and must still succeed.
	if err := store.InitializeStructure(ctx); err != nil {
		t.Fatalf("second InitializeStructure failed: %v", err)
	}

	expected := []string{
		"/BlogStorage",
		"/BlogStorage/posts",
		"/BlogStorage/drafts",
		"/BlogStorage/media",
		"/BlogStorage/media/images",
		"/BlogStorage/media/videos",
		"/BlogStorage/templates",
		"/BlogStorage/config",
	}
	for _, folder := range expected {
		if !fs.folders[folder] {
			t.Errorf("folder %s was not created", folder)
		}
	}
}

func TestListPublishedPostsFiltersAndSorts(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fs.files["/BlogStorage/posts/older.md"] = renderDoc(t, storedMeta("older", base, true), "older body")
	fs.files["/BlogStorage/posts/newer.md"] = renderDoc(t, storedMeta("newer", base.Add(24*time.Hour), true), "newer body")
	fs.files["/BlogStorage/posts/hidden.md"] = renderDoc(t, storedMeta("hidden", base.Add(48*time.Hour), false), "hidden body")
	fs.files["/BlogStorage/posts/notes.txt"] = "not markdown"

	store := newTestStore(fs)
	posts, err := store.ListPublishedPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPublishedPosts failed: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if posts[0].Metadata.Slug != "newer" || posts[1].Metadata.Slug != "older" {
		t.Errorf("order = %s, %s; want newer, older", posts[0].Metadata.Slug, posts[1].Metadata.Slug)
	}
	if posts[0].Content != "newer body" {
		t.Errorf("content = %q", posts[0].Content)
	}
}

func TestListPublishedPostsSkipsMalformed(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fs.files["/BlogStorage/posts/good.md"] = renderDoc(t, storedMeta("good", base, true), "good body")
	fs.files["/BlogStorage/posts/broken.md"] = "---\ntitle: [unclosed\n---\n\nbody"

	store := newTestStore(fs)
	posts, err := store.ListPublishedPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPublishedPosts failed: %v", err)
	}

	if len(posts) != 1 || posts[0].Metadata.Slug != "good" {
		t.Errorf("got %d posts, want just the well-formed one", len(posts))
	}
}

func TestListDraftPostsSortsByUpdated(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	stale := storedMeta("stale", base, false)
	fresh := storedMeta("fresh", base, false)
	fresh.UpdatedAt = base.Add(72 * time.Hour)

	fs.files["/BlogStorage/drafts/stale.md"] = renderDoc(t, stale, "stale body")
	fs.files["/BlogStorage/drafts/fresh.md"] = renderDoc(t, fresh, "fresh body")

	store := newTestStore(fs)
	drafts, err := store.ListDraftPosts(context.Background())
	if err != nil {
		t.Fatalf("ListDraftPosts failed: %v", err)
	}

	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
	if drafts[0].Metadata.Slug != "fresh" || drafts[1].Metadata.Slug != "stale" {
		t.Errorf("order = %s, %s; want fresh, stale", drafts[0].Metadata.Slug, drafts[1].Metadata.Slug)
	}
}

func TestGetPostBySlug(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fs.files["/BlogStorage/posts/live.md"] = renderDoc(t, storedMeta("live", base, true), "live body")
	fs.files["/BlogStorage/drafts/wip.md"] = renderDoc(t, storedMeta("wip", base, false), "wip body")

	store := newTestStore(fs)
	ctx := context.Background()

	post, err := store.GetPostBySlug(ctx, "live")
	if err != nil || post == nil {
		t.Fatalf("GetPostBySlug(live) = %v, %v", post, err)
	}
	if !post.Metadata.Published {
		t.Error("published post should come back published")
	}

	post, err = store.GetPostBySlug(ctx, "wip")
	if err != nil || post == nil {
		t.Fatalf("GetPostBySlug(wip) = %v, %v", post, err)
	}
	if post.RemotePath != "/BlogStorage/drafts/wip.md" {
		t.Errorf("draft remote path = %q", post.RemotePath)
	}

	post, err = store.GetPostBySlug(ctx, "missing")
	if err != nil {
		t.Fatalf("absent slug should not error, got %v", err)
	}
	if post != nil {
		t.Errorf("absent slug should be nil, got %+v", post)
	}
}

func TestGetPostBySlugMatchesFrontmatterNotFilename(t *testing.T) {
	fs := newFakeFileStore()

	// Remote-authored files are named freely; the slug comes from the
	// frontmatter (here derived from the title).
	fs.files["/BlogStorage/posts/My Draft Notes.md"] = "---\ntitle: Hello World\n---\n\nnotes body"
	fs.files["/BlogStorage/drafts/scratch pad.md"] = "---\ntitle: Work Notes\npublished: false\n---\n\nscratch body"

	store := newTestStore(fs)
	ctx := context.Background()

	posts, err := store.ListPublishedPosts(ctx)
	if err != nil {
		t.Fatalf("ListPublishedPosts failed: %v", err)
	}
	if len(posts) != 1 || posts[0].Metadata.Slug != "hello-world" {
		t.Fatalf("listing = %+v, want one post with slug hello-world", posts)
	}

	// Every slug a listing reports must resolve through GetPostBySlug.
	post, err := store.GetPostBySlug(ctx, "hello-world")
	if err != nil {
		t.Fatalf("GetPostBySlug failed: %v", err)
	}
	if post == nil {
		t.Fatal("GetPostBySlug(hello-world) = nil, but the slug is listed")
	}
	if post.RemotePath != "/BlogStorage/posts/My Draft Notes.md" {
		t.Errorf("remote path = %q", post.RemotePath)
	}

	post, err = store.GetPostBySlug(ctx, "work-notes")
	if err != nil {
		t.Fatalf("GetPostBySlug(work-notes) failed: %v", err)
	}
	if post == nil || post.RemotePath != "/BlogStorage/drafts/scratch pad.md" {
		t.Errorf("draft lookup = %+v, want the drafts folder file", post)
	}

	post, err = store.GetPostBySlug(ctx, "missing")
	if err != nil || post != nil {
		t.Errorf("absent slug = %+v, %v; want nil, nil", post, err)
	}
}

func TestGetPostBySlugPrefersPublishedCopy(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// A crashed publish leaves the slug in both folders.
	published := storedMeta("dup", base, true)
	published.Title = "Published copy"
	draft := storedMeta("dup", base, false)
	draft.Title = "Draft copy"

	fs.files["/BlogStorage/posts/dup.md"] = renderDoc(t, published, "published body")
	fs.files["/BlogStorage/drafts/dup.md"] = renderDoc(t, draft, "draft body")

	store := newTestStore(fs)
	post, err := store.GetPostBySlug(context.Background(), "dup")
	if err != nil || post == nil {
		t.Fatalf("GetPostBySlug failed: %v", err)
	}
	if post.Metadata.Title != "Published copy" {
		t.Errorf("title = %q, want the published copy", post.Metadata.Title)
	}
}

func TestSavePostRoundTrips(t *testing.T) {
	fs := newFakeFileStore()
	store := newTestStore(fs)
	ctx := context.Background()

	post := &domain.StoredPost{
		Metadata: storedMeta("first", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false),
		Content:  "# First\n\nDraft body.",
	}

	if err := store.SavePost(ctx, post, true); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	if post.RemotePath != "/BlogStorage/drafts/first.md" {
		t.Errorf("RemotePath = %q", post.RemotePath)
	}

	got, err := store.GetPostBySlug(ctx, "first")
	if err != nil || got == nil {
		t.Fatalf("GetPostBySlug after save failed: %v", err)
	}
	if got.Content != post.Content {
		t.Errorf("content = %q, want %q", got.Content, post.Content)
	}
	if got.Metadata.Title != "Post first" {
		t.Errorf("title = %q", got.Metadata.Title)
	}
}

func TestDeletePostChecksBothFolders(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fs.files["/BlogStorage/posts/live.md"] = renderDoc(t, storedMeta("live", base, true), "live")
	fs.files["/BlogStorage/drafts/wip.md"] = renderDoc(t, storedMeta("wip", base, false), "wip")

	store := newTestStore(fs)
	ctx := context.Background()

	deleted, err := store.DeletePost(ctx, "live")
	if err != nil || !deleted {
		t.Errorf("DeletePost(live) = %v, %v; want true", deleted, err)
	}

	deleted, err = store.DeletePost(ctx, "wip")
	if err != nil || !deleted {
		t.Errorf("DeletePost(wip) = %v, %v; want true", deleted, err)
	}

	deleted, err = store.DeletePost(ctx, "missing")
	if err != nil {
		t.Errorf("DeletePost(missing) error = %v", err)
	}
	if deleted {
		t.Error("deleting an absent slug should report false")
	}
}

func TestPublishPostMovesDraft(t *testing.T) {
	fs := newFakeFileStore()
	store := newTestStore(fs)
	store.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	draft := storedMeta("launch", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), false)
	fs.files["/BlogStorage/drafts/launch.md"] = renderDoc(t, draft, "launch body")

	published, err := store.PublishPost(ctx, "launch")
	if err != nil {
		t.Fatalf("PublishPost failed: %v", err)
	}
	if !published {
		t.Fatal("PublishPost should report true for an existing draft")
	}

	if _, stillDraft := fs.files["/BlogStorage/drafts/launch.md"]; stillDraft {
		t.Error("draft file should be removed after publish")
	}

	got, err := store.GetPostBySlug(ctx, "launch")
	if err != nil || got == nil {
		t.Fatalf("GetPostBySlug after publish failed: %v", err)
	}
	if !got.Metadata.Published {
		t.Error("published flag should be flipped")
	}
	if got.RemotePath != "/BlogStorage/posts/launch.md" {
		t.Errorf("remote path = %q", got.RemotePath)
	}
	if !got.Metadata.UpdatedAt.Equal(store.now()) {
		t.Errorf("updated_at = %v, want publish time", got.Metadata.UpdatedAt)
	}

	// Publishing a slug with no draft reports false without error.
	published, err = store.PublishPost(ctx, "missing")
	if err != nil {
		t.Fatalf("PublishPost(missing) error = %v", err)
	}
	if published {
		t.Error("PublishPost(missing) should report false")
	}
}

func TestTransientDownloadFailuresAreRetried(t *testing.T) {
	fs := newFakeFileStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fs.files["/BlogStorage/posts/flaky.md"] = renderDoc(t, storedMeta("flaky", base, true), "flaky body")
	fs.failures["/BlogStorage/posts/flaky.md"] = 2

	store := newTestStore(fs)
	post, err := store.GetPostBySlug(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("GetPostBySlug should succeed after retries: %v", err)
	}
	if post == nil || post.Metadata.Slug != "flaky" {
		t.Fatalf("post = %+v", post)
	}
}
