package pagination

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type item struct {
	ID    int
	Label string
}

func newRegistry() *Registry[item] {
	return NewRegistry(func(i item) string { return strconv.Itoa(i.ID) })
}

func ids(items []item) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFieldKey_StableAcrossArgumentOrder(t *testing.T) {
	a, err := FieldKey("posts", map[string]any{"limit": 10, "cursor": "123"})
	require.NoError(t, err)
	b, err := FieldKey("posts", map[string]any{"cursor": "123", "limit": 10})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `posts({"cursor":"123","limit":10})`, a)

	empty, err := FieldKey("me", nil)
	require.NoError(t, err)
	assert.Equal(t, "me({})", empty)
}

func TestFieldKey_Unserializable(t *testing.T) {
	_, err := FieldKey("posts", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestResolve_NothingRecorded(t *testing.T) {
	r := newRegistry()
	res, err := r.Resolve("posts", map[string]any{"limit": 2})
	require.NoError(t, err)
	assert.True(t, res.NeedRefetch)
	assert.Empty(t, res.Items)
}

func TestResolve_ConcatenatesInRecordingOrder(t *testing.T) {
	r := newRegistry()
	first := map[string]any{"limit": 2, "cursor": nil}
	second := map[string]any{"limit": 2, "cursor": "1000"}

	require.NoError(t, r.Record("posts", first, []item{{ID: 5}, {ID: 4}}))
	require.NoError(t, r.Record("posts", second, []item{{ID: 3}, {ID: 2}}))

	res, err := r.Resolve("posts", second)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.False(t, res.NeedRefetch)
	assert.Equal(t, []int{5, 4, 3, 2}, ids(res.Items))
}

func TestResolve_UnrecordedKeyIsPartial(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Record("posts", map[string]any{"limit": 2}, []item{{ID: 5}, {ID: 4}}))

	res, err := r.Resolve("posts", map[string]any{"limit": 2, "cursor": "999"})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.False(t, res.NeedRefetch)
	assert.Equal(t, []int{5, 4}, ids(res.Items))
}

func TestResolve_DeduplicatesFirstWins(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Record("posts", map[string]any{"p": 1}, []item{{ID: 3, Label: "first"}, {ID: 2}}))
	require.NoError(t, r.Record("posts", map[string]any{"p": 2}, []item{{ID: 2, Label: "again"}, {ID: 1}}))

	res, err := r.Resolve("posts", map[string]any{"p": 1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(res.Items))
	assert.Equal(t, "", res.Items[1].Label)
}

func TestRecord_ReplacesInPlace(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Record("posts", map[string]any{"p": 1}, []item{{ID: 9}}))
	require.NoError(t, r.Record("posts", map[string]any{"p": 2}, []item{{ID: 8}}))
	require.NoError(t, r.Record("posts", map[string]any{"p": 1}, []item{{ID: 10}, {ID: 9}}))

	assert.Equal(t, 2, r.Pages("posts"))
	res, err := r.Resolve("posts", map[string]any{"p": 2})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 9, 8}, ids(res.Items))
}

func TestRecord_CopiesItems(t *testing.T) {
	r := newRegistry()
	page := []item{{ID: 1}}
	require.NoError(t, r.Record("posts", nil, page))
	page[0].ID = 99

	res, err := r.Resolve("posts", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(res.Items))
}

func TestInvalidate(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Record("posts", nil, []item{{ID: 1}}))
	require.NoError(t, r.Record("comments", nil, []item{{ID: 2}}))
	r.Invalidate("posts")

	res, err := r.Resolve("posts", nil)
	require.NoError(t, err)
	assert.True(t, res.NeedRefetch)
	assert.Equal(t, 1, r.Pages("comments"))
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Record("posts", map[string]any{"page": i}, []item{{ID: i}})
			_, _ = r.Resolve("posts", map[string]any{"page": i})
		}(i)
	}
	wg.Wait()

	res, err := r.Resolve("posts", map[string]any{"page": 0})
	require.NoError(t, err)
	assert.Len(t, res.Items, 16)
}
