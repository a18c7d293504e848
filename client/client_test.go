package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBoard answers the operations the client sends, keyed by operation name.
type fakeBoard struct {
	mu       sync.Mutex
	calls    map[string]int
	loggedIn bool
	posts    []Post
	created  int
	// delay holds every request before it is answered
	delay time.Duration
}

func (f *fakeBoard) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBoard) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fields := strings.FieldsFunc(req.Query, func(r rune) bool { return r == ' ' || r == '(' || r == '{' })
	op := fields[1]
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if c, err := r.Cookie("qid"); err == nil && c.Value == "session" {
		f.loggedIn = true
	}

	alice := map[string]interface{}{"id": 1, "username": "alice", "email": "alice@example.com"}
	var out interface{}
	switch op {
	case "Me":
		if f.loggedIn {
			out = map[string]interface{}{"data": map[string]interface{}{"me": alice}}
		} else {
			out = map[string]interface{}{"data": map[string]interface{}{"me": nil}}
		}
	case "Login":
		if req.Variables["password"] != "hunter22" {
			out = map[string]interface{}{"data": map[string]interface{}{"login": map[string]interface{}{
				"errors": []map[string]string{{"field": "password", "message": "Password incorrect!"}},
				"user":   nil,
			}}}
			break
		}
		http.SetCookie(w, &http.Cookie{Name: "qid", Value: "session", Path: "/", HttpOnly: true})
		out = map[string]interface{}{"data": map[string]interface{}{"login": map[string]interface{}{"errors": nil, "user": alice}}}
	case "Logout":
		f.loggedIn = false
		http.SetCookie(w, &http.Cookie{Name: "qid", Value: "", Path: "/", MaxAge: -1})
		out = map[string]interface{}{"data": map[string]interface{}{"logout": true}}
	case "CreatePost":
		if !f.loggedIn {
			out = map[string]interface{}{"data": nil, "errors": []map[string]string{{"message": "not authenticated"}}}
			break
		}
		f.created++
		p := Post{ID: 99 + f.created, Title: "new", CreatedAt: "9999"}
		f.posts = append([]Post{p}, f.posts...)
		out = map[string]interface{}{"data": map[string]interface{}{"createPost": p}}
	case "Post":
		var post interface{}
		for _, p := range f.posts {
			if float64(p.ID) == req.Variables["id"] {
				post = p
			}
		}
		out = map[string]interface{}{"data": map[string]interface{}{"post": post}}
	case "Posts":
		limit := int(req.Variables["limit"].(float64))
		cursor, _ := req.Variables["cursor"].(string)
		page := []Post{}
		for _, p := range f.posts {
			if cursor != "" && p.CreatedAt >= cursor {
				continue
			}
			if len(page) == limit {
				break
			}
			page = append(page, p)
		}
		out = map[string]interface{}{"data": map[string]interface{}{"posts": page}}
	default:
		out = map[string]interface{}{"errors": []map[string]string{{"message": "unknown operation " + op}}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func newFixture(t *testing.T, posts int) (*Client, *fakeBoard) {
	t.Helper()
	board := &fakeBoard{calls: map[string]int{}}
	for i := posts; i >= 1; i-- {
		// fixed-width cursors compare correctly as strings
		board.posts = append(board.posts, Post{ID: i, Title: fmt.Sprintf("post %d", i), CreatedAt: fmt.Sprintf("%04d", i)})
	}
	srv := httptest.NewServer(board)

	c, err := New(srv.URL + "/graphql")
	require.NoError(t, err)
	t.Cleanup(func() {
		c.http.CloseIdleConnections()
		srv.Close()
	})
	return c, board
}

func ids(posts []Post) []int {
	out := make([]int, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestPostsMergesPages(t *testing.T) {
	c, board := newFixture(t, 5)
	ctx := context.Background()

	first, err := c.Posts(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, ids(first.Items))
	assert.False(t, first.Partial)

	second, err := c.Posts(ctx, 2, NextCursor(first.Items))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3, 2}, ids(second.Items))
	assert.Equal(t, 2, board.count("Posts"))

	// both pages are cached now
	again, err := c.Posts(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3, 2}, ids(again.Items))
	assert.Equal(t, 2, board.count("Posts"))
}

func TestLoginCachesUserAndSendsCookie(t *testing.T) {
	c, board := newFixture(t, 0)
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Nil(t, me)

	res, err := c.Login(ctx, "alice", "wrong")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Password incorrect!", res.Errors[0].Message)
	cached, known := c.Cache().Me()
	assert.True(t, known)
	assert.Nil(t, cached)

	res, err = c.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, res.User)
	me, err = c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, 1, board.count("Me"))

	require.Len(t, c.Cookies(), 1)
	assert.Equal(t, "qid", c.Cookies()[0].Name)

	ok, err := c.Logout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	me, err = c.Me(ctx)
	require.NoError(t, err)
	assert.Nil(t, me)
	assert.Empty(t, c.Cookies())
}

func TestCreatePostNeedsSessionAndInvalidatesPages(t *testing.T) {
	c, board := newFixture(t, 3)
	ctx := context.Background()

	_, err := c.CreatePost(ctx, "new", "text")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = c.Posts(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Cache().Posts.Pages(postsField))

	_, err = c.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	post, err := c.CreatePost(ctx, "new", "text")
	require.NoError(t, err)
	assert.Equal(t, 100, post.ID)
	assert.Zero(t, c.Cache().Posts.Pages(postsField))

	res, err := c.Posts(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []int{100, 3, 2, 1}, ids(res.Items))
	assert.Equal(t, 2, board.count("Posts"))
}

func TestRestoredCookieResumesSession(t *testing.T) {
	c, _ := newFixture(t, 0)
	c.SetCookies([]*http.Cookie{{Name: "qid", Value: "session"}})

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "alice", me.Username)
}

func TestGraphQLErrorsSurface(t *testing.T) {
	c, _ := newFixture(t, 0)
	err := c.query(context.Background(), `query Bogus { x }`, nil, nil)

	var gqlErr *GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, []string{"unknown operation Bogus"}, gqlErr.Messages)
}

func TestConcurrentIdenticalMutationsAllReachServer(t *testing.T) {
	c, board := newFixture(t, 0)
	ctx := context.Background()
	_, err := c.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	board.setDelay(100 * time.Millisecond)

	var wg sync.WaitGroup
	got := make([]int, 2)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.CreatePost(ctx, "t", "x")
			if assert.NoError(t, err) {
				got[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, board.count("CreatePost"))
	assert.ElementsMatch(t, []int{100, 101}, got)
}

func TestConcurrentIdenticalQueriesShareRoundTrip(t *testing.T) {
	c, board := newFixture(t, 3)
	board.setDelay(100 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Post(context.Background(), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, board.count("Post"))
}
