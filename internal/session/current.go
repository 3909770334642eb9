package session

import "sync/atomic"

// Current holds the session an auth context is working with. The held
// value is replaced wholesale and never mutated in place.
type Current struct {
	p atomic.Pointer[Session]
}

// Load returns the held session or nil.
func (c *Current) Load() *Session {
	return c.p.Load()
}

// Replace stores a copy of s; a nil s clears the holder.
func (c *Current) Replace(s *Session) {
	if s == nil {
		c.p.Store(nil)
		return
	}
	cp := *s
	c.p.Store(&cp)
}

func (c *Current) Clear() {
	c.p.Store(nil)
}
