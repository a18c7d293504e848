package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"

	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/stores"
	"github.com/cppla/gqlbbs/utils"
)

const (
	// MaxPageSize caps the limit argument of a posts query.
	MaxPageSize = 50

	postsCachePrefix = "cache:posts:list:"
	postsGenKey      = "cache:posts:gen"
	postsCacheTTL    = 5 * time.Minute
)

// PageCache caches serialized post pages. A nil PageCache disables caching.
// Page keys carry the generation read before the query, so a page computed
// before a createPost is never served after it.
type PageCache interface {
	GetJSON(ctx context.Context, key string, out interface{}) bool
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
	InvalidateByPrefix(ctx context.Context, prefix string)
	Generation(ctx context.Context, key string) (int64, bool)
	Bump(ctx context.Context, key string)
}

// PostInput is the createPost payload.
type PostInput struct {
	Title string
	Text  string
}

// PostService lists and creates posts.
type PostService struct {
	posts PostRepository
	users UserRepository
	cache PageCache
	group singleflight.Group
	// writes counts creates in this process; in-flight lists started before
	// a create are not joined after it.
	writes atomic.Int64
}

func NewPostService(posts PostRepository, users UserRepository, cache PageCache) *PostService {
	return &PostService{posts: posts, users: users, cache: cache}
}

// ClampLimit bounds a requested page size to [1, MaxPageSize].
func ClampLimit(limit int) int {
	if limit > MaxPageSize {
		return MaxPageSize
	}
	if limit < 1 {
		return 1
	}
	return limit
}

// FormatCursor renders a creation time as a cursor: Unix milliseconds in decimal.
func FormatCursor(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseCursor parses a cursor produced by FormatCursor. An empty cursor means the first page.
func ParseCursor(cursor string) (*time.Time, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q", cursor)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

// List returns up to limit posts strictly older than cursor, newest first.
// Identical concurrent requests share one database round trip.
func (s *PostService) List(ctx context.Context, limit int, cursor string) ([]models.Post, error) {
	limit = ClampLimit(limit)
	before, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}

	writes := s.writes.Load()
	var gen int64
	cacheable := false
	if s.cache != nil {
		gen, cacheable = s.cache.Generation(ctx, postsGenKey)
	}
	key := fmt.Sprintf("%s%d:%d:%s", postsCachePrefix, gen, limit, strings.TrimSpace(cursor))
	if cacheable {
		var cached []models.Post
		if s.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	// the shared query must outlive any single caller
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(fmt.Sprintf("%d|%s", writes, key), func() (interface{}, error) {
		posts, err := s.posts.List(shared, limit, before)
		if err != nil {
			return nil, err
		}
		if cacheable {
			s.cache.SetJSON(shared, key, posts, postsCacheTTL)
		}
		return posts, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, oops.Code("POST_STORE_FAILED").With("operation", "list posts").Wrap(res.Err)
		}
		return append([]models.Post(nil), res.Val.([]models.Post)...), nil
	}
}

// Get returns a post by id, or nil when it does not exist.
func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if errors.Is(err, stores.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "find post").Wrap(err)
	}
	return post, nil
}

// Create stores a post owned by the session user.
func (s *PostService) Create(ctx context.Context, rc *RequestContext, in PostInput) (*models.Post, error) {
	if !rc.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	post := &models.Post{
		Title:     strings.TrimSpace(in.Title),
		Text:      utils.SanitizeHTML(in.Text),
		CreatorID: rc.UserID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, oops.Code("POST_STORE_FAILED").With("operation", "create post").Wrap(err)
	}
	s.writes.Add(1)
	if s.cache != nil {
		s.cache.Bump(ctx, postsGenKey)
		s.cache.InvalidateByPrefix(ctx, postsCachePrefix)
	}

	if creator, err := s.users.FindByID(ctx, rc.UserID); err == nil {
		post.Creator = *creator
	} else {
		utils.Sugar.Warnw("load post creator failed", "post_id", post.ID, "error", err)
	}
	return post, nil
}
