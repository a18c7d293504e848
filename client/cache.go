package client

import (
	"strconv"
	"sync"

	"github.com/cppla/gqlbbs/pagination"
)

const postsField = "posts"

// Cache holds the current user and the merged pages of the posts list.
type Cache struct {
	mu      sync.RWMutex
	me      *User
	meKnown bool

	Posts *pagination.Registry[Post]
}

func NewCache() *Cache {
	return &Cache{
		Posts: pagination.NewRegistry(func(p Post) string { return strconv.Itoa(p.ID) }),
	}
}

// Me returns the cached user and whether the cache knows the answer at all.
// A known nil user means anonymous.
func (c *Cache) Me() (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.me, c.meKnown
}

// SetMe overwrites the cached user.
func (c *Cache) SetMe(u *User) {
	c.mu.Lock()
	c.me, c.meKnown = u, true
	c.mu.Unlock()
}

// ForgetMe drops the cached user so the next Me query goes to the server.
func (c *Cache) ForgetMe() {
	c.mu.Lock()
	c.me, c.meKnown = nil, false
	c.mu.Unlock()
}
