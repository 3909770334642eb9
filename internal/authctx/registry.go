package authctx

import (
	"context"
	"sync"
	"time"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/resolver"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

// Deps are the collaborators every per-session Context is built from.
type Deps struct {
	Store       session.Store
	Hub         *identity.Hub
	Resolver    resolver.Resolver
	Preferences PreferenceFetcher
	Admin       resolver.AdminChecker
	InitTimeout time.Duration
	// Released is called with a user id once no Context holds that user
	// any more, so per-user state kept elsewhere can be let go.
	Released func(userID string)
}

// Registry owns one Context per browser session id. A Context is created
// and initialized on first use and closed when its session signs out or
// is dropped.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	contexts map[string]*Context
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		contexts: make(map[string]*Context),
	}
}

// Get returns the initialized Context for sessionID, creating it if
// needed. It blocks at most for the init timeout.
func (r *Registry) Get(ctx context.Context, sessionID string) *Context {
	r.mu.Lock()
	c, ok := r.contexts[sessionID]
	if !ok {
		c = r.newContext(sessionID)
		r.contexts[sessionID] = c
	}
	r.mu.Unlock()

	c.Initialize(ctx)
	return c
}

func (r *Registry) newContext(sessionID string) *Context {
	backend := identity.NewSessionBackend(r.deps.Store, r.deps.Hub, sessionID)

	opts := []Option{
		WithInitTimeout(r.deps.InitTimeout),
		WithSignedOut(func(prev auth.User) {
			// Close waits for chains; never block the publisher on it.
			go r.drop(sessionID, prev)
		}),
	}
	if r.deps.Admin != nil {
		opts = append(opts, WithAdminChecker(r.deps.Admin))
	}

	return New(backend, r.deps.Resolver, r.deps.Preferences, opts...)
}

// Drop removes and closes the Context for sessionID, if any.
func (r *Registry) Drop(sessionID string) {
	r.drop(sessionID, auth.User{})
}

// drop closes the Context for sessionID. owner is the user it held when
// that can no longer be read from the Context itself.
func (r *Registry) drop(sessionID string, owner auth.User) {
	r.mu.Lock()
	c, ok := r.contexts[sessionID]
	delete(r.contexts, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if u, signedIn := c.User(); signedIn {
		owner = u
	}
	c.Close()
	r.release(owner.ID)
}

func (r *Registry) release(userID string) {
	if userID == "" || r.deps.Released == nil {
		return
	}

	r.mu.Lock()
	for _, c := range r.contexts {
		if u, ok := c.User(); ok && u.ID == userID {
			r.mu.Unlock()
			return
		}
	}
	r.mu.Unlock()

	r.deps.Released(userID)
}

// Sweep drops every Context whose session is gone from the store, which
// is how sessions that expire without another request are let go.
func (r *Registry) Sweep(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.contexts))
	for id := range r.contexts {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	dropped := 0
	for _, id := range ids {
		sess, err := r.deps.Store.Get(ctx, id)
		if err != nil {
			logger.Warn("auth context sweep: session lookup failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
		if sess == nil || sess.IsExpired(time.Now()) {
			r.Drop(id)
			dropped++
		}
	}

	if dropped > 0 {
		logger.Info("auth contexts swept", map[string]any{
			"dropped":   dropped,
			"remaining": r.Len(),
		})
	}
}

// RunSweeper calls Sweep every interval until ctx is done. A
// non-positive interval disables sweeping.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

// CloseAll closes every Context. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.contexts
	r.contexts = make(map[string]*Context)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func(c *Context) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
}
