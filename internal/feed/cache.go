package feed

// Entry is a cached post with its 1-based display position.
type Entry struct {
	Position int
	Post     Post
}

// Cache holds the session's ordered post list. It is not safe for concurrent
// use; the session controller serializes access.
type Cache struct {
	posts []Post
	index map[int64]int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{index: make(map[int64]int)}
}

// Replace discards the cached posts and stores posts in server order.
func (c *Cache) Replace(posts []Post) {
	c.posts = append(c.posts[:0:0], posts...)
	c.reindex()
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.posts = nil
	c.index = make(map[int64]int)
}

// Len returns the number of cached posts.
func (c *Cache) Len() int {
	return len(c.posts)
}

// Posts returns a copy of the cached posts in display order.
func (c *Cache) Posts() []Post {
	return append([]Post(nil), c.posts...)
}

// Entries returns the cached posts with their display positions.
func (c *Cache) Entries() []Entry {
	out := make([]Entry, len(c.posts))
	for i, p := range c.posts {
		out[i] = Entry{Position: i + 1, Post: p}
	}
	return out
}

// Get returns the cached post with the given message id.
func (c *Cache) Get(id int64) (Post, bool) {
	i, ok := c.index[id]
	if !ok {
		return Post{}, false
	}
	return c.posts[i], true
}

// Position returns the 1-based display position of id, or 0 when absent.
func (c *Cache) Position(id int64) int {
	i, ok := c.index[id]
	if !ok {
		return 0
	}
	return i + 1
}

// SetComment overwrites the generated comment of a cached post. It reports
// false when the post is not cached.
func (c *Cache) SetComment(id int64, comment string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.posts[i].AIComment = comment
	return true
}

// Delete removes a post and renumbers the remaining positions contiguously
// from 1. It reports false when the post is not cached.
func (c *Cache) Delete(id int64) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.posts = append(c.posts[:i], c.posts[i+1:]...)
	c.reindex()
	return true
}

func (c *Cache) reindex() {
	c.index = make(map[int64]int, len(c.posts))
	for i, p := range c.posts {
		c.index[p.ID] = i
	}
}
