package rest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/dropblog/dropblog/api"
	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/blog/domain"
	"github.com/dropblog/dropblog/shared/cache"
)

// memRepo is a minimal in-memory PostRepository for route tests.
type memRepo struct {
	posts map[string]*domain.Post
}

func (r *memRepo) UpsertPost(ctx context.Context, p *domain.Post) error {
	copied := *p
	if existing, ok := r.posts[p.Slug]; ok {
		copied.ID = existing.ID
		copied.Version = existing.Version + 1
	} else {
		copied.Version = 1
	}
	r.posts[p.Slug] = &copied
	return nil
}

func (r *memRepo) GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	p, ok := r.posts[slug]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	return p, nil
}

func (r *memRepo) ListPosts(ctx context.Context, filters domain.PostFilters) ([]*domain.Post, int, error) {
	out := make([]*domain.Post, 0, len(r.posts))
	for _, p := range r.posts {
		if filters.Published != nil && p.Published != *filters.Published {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memRepo) DeletePost(ctx context.Context, slug string) error {
	delete(r.posts, slug)
	return nil
}

func (r *memRepo) GetStats(ctx context.Context) (*domain.PostStats, error) {
	return &domain.PostStats{TotalPosts: int64(len(r.posts))}, nil
}

// memRemote is a minimal in-memory RemotePostStore and RemoteMediaStore.
type memRemote struct {
	posts  map[string]*domain.StoredPost
	drafts map[string]*domain.StoredPost
	media  map[string][]byte
}

func (f *memRemote) InitializeStructure(ctx context.Context) error { return nil }

func (f *memRemote) ListPublishedPosts(ctx context.Context) ([]domain.StoredPost, error) {
	out := make([]domain.StoredPost, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, *p)
	}
	return out, nil
}

func (f *memRemote) ListDraftPosts(ctx context.Context) ([]domain.StoredPost, error) {
	out := make([]domain.StoredPost, 0, len(f.drafts))
	for _, p := range f.drafts {
		out = append(out, *p)
	}
	return out, nil
}

func (f *memRemote) GetPostBySlug(ctx context.Context, slug string) (*domain.StoredPost, error) {
	if p, ok := f.posts[slug]; ok {
		return p, nil
	}
	if p, ok := f.drafts[slug]; ok {
		return p, nil
	}
	return nil, nil
}

func (f *memRemote) SavePost(ctx context.Context, post *domain.StoredPost, isDraft bool) error {
	if isDraft {
		post.RemotePath = "/BlogStorage/drafts/" + post.Metadata.Slug + ".md"
		f.drafts[post.Metadata.Slug] = post
	} else {
		post.RemotePath = "/BlogStorage/posts/" + post.Metadata.Slug + ".md"
		f.posts[post.Metadata.Slug] = post
	}
	return nil
}

func (f *memRemote) DeletePost(ctx context.Context, slug string) (bool, error) {
	if _, ok := f.posts[slug]; ok {
		delete(f.posts, slug)
		return true, nil
	}
	if _, ok := f.drafts[slug]; ok {
		delete(f.drafts, slug)
		return true, nil
	}
	return false, nil
}

func (f *memRemote) PublishPost(ctx context.Context, slug string) (bool, error) {
	draft, ok := f.drafts[slug]
	if !ok {
		return false, nil
	}
	draft.Metadata.Published = true
	draft.RemotePath = "/BlogStorage/posts/" + slug + ".md"
	f.posts[slug] = draft
	delete(f.drafts, slug)
	return true, nil
}

func (f *memRemote) UploadMedia(ctx context.Context, filename string, content []byte) (*domain.MediaFile, error) {
	path := "/BlogStorage/media/" + filename
	f.media[path] = content
	return &domain.MediaFile{Path: path, Size: int64(len(content))}, nil
}

func (f *memRemote) DeleteMedia(ctx context.Context, path string) (bool, error) {
	if _, ok := f.media[path]; !ok {
		return false, nil
	}
	delete(f.media, path)
	return true, nil
}

// memMedia is a minimal in-memory MediaRepository.
type memMedia struct {
	files map[string]*domain.MediaFile
}

func (r *memMedia) SaveMedia(ctx context.Context, m *domain.MediaFile) error {
	r.files[m.Path] = m
	return nil
}

func (r *memMedia) GetMedia(ctx context.Context, path string) (*domain.MediaFile, error) {
	m, ok := r.files[path]
	if !ok {
		return nil, domain.ErrMediaNotFound
	}
	return m, nil
}

func (r *memMedia) ListMedia(ctx context.Context) ([]*domain.MediaFile, error) {
	out := make([]*domain.MediaFile, 0, len(r.files))
	for _, m := range r.files {
		out = append(out, m)
	}
	return out, nil
}

func (r *memMedia) DeleteMedia(ctx context.Context, path string) error {
	delete(r.files, path)
	return nil
}

func newTestRouter(t *testing.T, apiKey string) (*gin.Engine, *memRepo, *memRemote) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	repo := &memRepo{posts: make(map[string]*domain.Post)}
	remote := &memRemote{
		posts:  make(map[string]*domain.StoredPost),
		drafts: make(map[string]*domain.StoredPost),
		media:  make(map[string][]byte),
	}
	media := &memMedia{files: make(map[string]*domain.MediaFile)}

	service := application.NewPostService(repo, remote, media, remote,
		application.NewMarkdownRenderer("https://blog.example.com"),
		cache.New(cache.DefaultConfig()), sqlDB)

	router := gin.New()
	NewAPI(router, service, apiKey)
	return router, repo, remote
}

func seedPost(repo *memRepo, slug string) {
	repo.posts[slug] = &domain.Post{
		ID:        "id-" + slug,
		Slug:      slug,
		Title:     "Post " + slug,
		Published: true,
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
}

func TestGetPostRoute(t *testing.T) {
	router, repo, _ := newTestRouter(t, "")
	seedPost(repo, "hello")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/hello", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var got api.Post
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if got.Slug != "hello" || got.Title != "Post hello" {
		t.Errorf("post = %+v", got)
	}
}

func TestGetPostRouteNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListPostsRoute(t *testing.T) {
	router, repo, _ := newTestRouter(t, "")
	seedPost(repo, "one")
	seedPost(repo, "two")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts?page=1&per_page=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var got api.PostList
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if got.Total != 2 || len(got.Posts) != 2 {
		t.Errorf("list = %+v", got)
	}
	if got.Page != 1 || got.PerPage != 10 {
		t.Errorf("pagination echo = %d/%d", got.Page, got.PerPage)
	}
}

func TestListPostsRouteRejectsBadQuery(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	for _, query := range []string{"page=0", "page=abc", "per_page=-1", "published=maybe"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts?"+query, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, w.Code)
		}
	}
}

func TestCreatePostRouteRequiresKey(t *testing.T) {
	router, _, remote := newTestRouter(t, "topsecret")

	body, _ := json.Marshal(api.CreatePostRequest{Title: "Locked Out", Published: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/posts", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "topsecret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("authenticated status = %d, body = %s", w.Code, w.Body.String())
	}

	if _, ok := remote.posts["locked-out"]; !ok {
		t.Error("post should be saved remotely")
	}
}

func TestCreatePostRouteConflict(t *testing.T) {
	router, _, remote := newTestRouter(t, "")
	remote.posts["taken"] = &domain.StoredPost{
		Metadata:   domain.PostMetadata{Title: "Taken", Slug: "taken", Published: true},
		RemotePath: "/BlogStorage/posts/taken.md",
	}

	body, _ := json.Marshal(api.CreatePostRequest{Title: "Taken"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts", bytes.NewReader(body)))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestPublishPostRoute(t *testing.T) {
	router, _, remote := newTestRouter(t, "")
	remote.drafts["wip"] = &domain.StoredPost{
		Metadata: domain.PostMetadata{
			Title: "WIP", Slug: "wip",
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		},
		Content:    "draft body",
		RemotePath: "/BlogStorage/drafts/wip.md",
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts/wip/publish", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, ok := remote.posts["wip"]; !ok {
		t.Error("draft should have moved to published")
	}
}

func TestDeletePostRoute(t *testing.T) {
	router, repo, remote := newTestRouter(t, "")
	seedPost(repo, "doomed")
	remote.posts["doomed"] = &domain.StoredPost{
		Metadata:   domain.PostMetadata{Title: "Doomed", Slug: "doomed", Published: true},
		RemotePath: "/BlogStorage/posts/doomed.md",
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/posts/doomed", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/posts/doomed", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestDeleteMediaRoute(t *testing.T) {
	router, _, remote := newTestRouter(t, "")
	remote.media["/BlogStorage/media/photo.jpg"] = []byte("bytes")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/media/BlogStorage/media/photo.jpg", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/media/BlogStorage/media/photo.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestCacheMetricsRoute(t *testing.T) {
	router, repo, _ := newTestRouter(t, "")
	seedPost(repo, "warm")

	// One miss then one hit.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/warm", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("warmup status = %d", w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var got api.CacheMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if got.Hits < 1 || got.Misses < 1 {
		t.Errorf("metrics = %+v, want at least one hit and one miss", got)
	}
	if got.CachedPosts != 1 {
		t.Errorf("cached posts = %d, want 1", got.CachedPosts)
	}
}
