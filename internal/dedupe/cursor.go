// ABOUTME: Session-wide event cursor and seen-id set guaranteeing at-most-once processing
// ABOUTME: Admit marks an id and advances the monotonic cursor in one atomic step

package dedupe

import "sync"

// Cursor is the process-wide resume point and de-duplication set.
type Cursor struct {
	mu   sync.RWMutex
	seen map[int64]struct{}
	last int64
}

// NewCursor creates an empty cursor positioned at 0.
func NewCursor() *Cursor {
	return &Cursor{seen: make(map[int64]struct{})}
}

// Admit atomically checks whether id has been seen and marks it if not.
// Returns true for a new id, false for a duplicate. A duplicate leaves the
// cursor and set untouched.
func (c *Cursor) Admit(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	if id > c.last {
		c.last = id
	}
	return true
}

// Seen reports whether id has been admitted.
func (c *Cursor) Seen(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[id]
	return ok
}

// Last returns the highest admitted id. Polls request events after it.
func (c *Cursor) Last() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Len returns how many distinct ids have been admitted.
func (c *Cursor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// Reset forgets everything. Only used when a session restarts.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[int64]struct{})
	c.last = 0
}
