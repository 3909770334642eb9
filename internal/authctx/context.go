// Package authctx keeps one browser session's authentication state: the
// current session, the resolved profile and the user's preferences.
//
// Three triggers run the same resolve-then-fetch-preferences chain:
// Initialize, auth events from the identity backend, and RefreshProfile.
// Every chain is tagged with a generation number when it starts and may
// only write state while that generation is still current. Sign-out and
// every newer chain advance the generation, which is how late results of
// superseded chains are discarded. Network calls of a superseded chain are
// not cancelled; only their writes are dropped.
package authctx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/resolver"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/metrics"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

// DefaultInitTimeout bounds how long Initialize keeps Loading true.
const DefaultInitTimeout = 5 * time.Second

// PreferenceFetcher returns nil when the user has no usable preferences.
type PreferenceFetcher interface {
	Fetch(ctx context.Context, userID string) *auth.Preferences
}

// State is a point-in-time copy of a Context.
type State struct {
	Session          *session.Session
	Profile          *auth.Profile
	Preferences      *auth.Preferences
	Loading          bool
	AdminCheckIssued bool
}

func (s State) IsAuthenticated() bool {
	_, ok := s.Session.User()
	return ok
}

func (s State) IsAdmin() bool {
	return s.Profile.IsAdmin()
}

type Option func(*Context)

func WithInitTimeout(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// WithAdminChecker enables the out-of-band admin-status check for users
// whose profile could not be resolved.
func WithAdminChecker(a resolver.AdminChecker) Option {
	return func(c *Context) { c.admin = a }
}

// WithSignedOut registers fn to run after a sign-out has cleared state.
// fn receives the user that was signed in, if any.
func WithSignedOut(fn func(prev auth.User)) Option {
	return func(c *Context) { c.onSignedOut = fn }
}

// Context is the auth orchestrator for one browser session.
type Context struct {
	backend     identity.Backend
	resolver    resolver.Resolver
	prefs       PreferenceFetcher
	admin       resolver.AdminChecker
	initTimeout time.Duration
	onSignedOut func(auth.User)

	current session.Current

	// mu guards everything below and the writes to current.
	mu               sync.Mutex
	gen              uint64
	profile          *auth.Profile
	preferences      *auth.Preferences
	loading          bool
	adminCheckIssued bool
	closed           bool
	unsubscribe      func()

	// chains serializes resolution chains so that two never interleave.
	chains   *semaphore.Weighted
	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	initOnce sync.Once
	initDone chan struct{}
}

func New(
	backend identity.Backend,
	res resolver.Resolver,
	prefs PreferenceFetcher,
	opts ...Option,
) *Context {
	lifetime, cancel := context.WithCancel(context.Background())

	c := &Context{
		backend:     backend,
		resolver:    res,
		prefs:       prefs,
		initTimeout: DefaultInitTimeout,
		loading:     true,
		chains:      semaphore.NewWeighted(1),
		initDone:    make(chan struct{}),
		lifetime:    lifetime,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics.ActiveAuthContexts.Inc()
	return c
}

// Initialize subscribes to auth events, probes the current session and
// runs the chain for it. Loading turns false when the chain finishes or
// the init timeout fires, whichever is first; a chain still running keeps
// going in the background. Only the first call starts the work. Every
// caller waits for that outcome or for its own ctx; a caller giving up
// does not end Loading early.
func (c *Context) Initialize(ctx context.Context) {
	c.initOnce.Do(func() {
		go func() {
			defer close(c.initDone)
			c.initialize()
		}()
	})

	select {
	case <-c.initDone:
	case <-ctx.Done():
	}
}

func (c *Context) initialize() {
	c.mu.Lock()
	if c.closed {
		c.loading = false
		c.mu.Unlock()
		return
	}
	c.unsubscribe = c.backend.Subscribe(c.handleEvent)
	probeGen := c.gen
	c.wg.Add(1)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer c.wg.Done()
		defer close(done)

		sess, err := c.backend.CurrentSession(c.lifetime)
		if err != nil {
			logger.Warn("auth init: session probe failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
		if _, ok := sess.User(); !ok {
			return
		}

		ch, ok := c.begin(&probeGen, sess)
		if !ok {
			return
		}
		c.run(c.lifetime, ch)
	}()

	timer := time.NewTimer(c.initTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warn("auth init timed out; continuing in background", map[string]any{
			"timeout": c.initTimeout.String(),
		})
	}

	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

// handleEvent is the identity backend listener.
func (c *Context) handleEvent(event identity.Event, sess *session.Session) {
	if _, ok := sess.User(); !ok {
		c.signOut(event)
		return
	}

	ch, ok := c.begin(nil, sess)
	if !ok {
		return
	}

	logger.Debug("auth event", map[string]any{
		"event":   string(event),
		"user_id": ch.user.ID,
	})

	go c.run(c.lifetime, ch)
}

// signOut clears session, profile, preferences and the admin-check flag
// in one critical section. Advancing the generation in that same section
// is what keeps any in-flight chain from writing afterwards.
func (c *Context) signOut(event identity.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	prev, _ := c.current.Load().User()
	c.current.Clear()
	c.profile = nil
	c.preferences = nil
	c.adminCheckIssued = false
	c.mu.Unlock()

	logger.Info("auth state cleared", map[string]any{
		"event": string(event),
	})

	if c.onSignedOut != nil {
		c.onSignedOut(prev)
	}
}

// RefreshProfile re-runs the chain for the current session and waits for
// it or for ctx, whichever ends first. The chain itself runs on the
// Context's lifetime, so a caller giving up does not abandon it. Loading
// is not touched. It is a no-op without a session.
func (c *Context) RefreshProfile(ctx context.Context) {
	ch, ok := c.begin(nil, nil)
	if !ok {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(c.lifetime, ch)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

type chain struct {
	gen  uint64
	user auth.User
}

// begin starts a chain. A non-nil sess replaces the current session first.
// With expect set, begin fails if the generation has moved on since the
// caller read it. On success the chain is registered with c.wg and the
// caller must hand it to run.
func (c *Context) begin(expect *uint64, sess *session.Session) (chain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || (expect != nil && c.gen != *expect) {
		return chain{}, false
	}

	if sess != nil {
		prev := c.current.Load()
		if prev == nil || prev.UserID != sess.UserID {
			// Another user's profile must not survive until the chain lands.
			c.profile = nil
			c.preferences = nil
			c.adminCheckIssued = false
		}
		c.current.Replace(sess)
	}

	user, ok := c.current.Load().User()
	if !ok {
		return chain{}, false
	}

	c.gen++
	c.wg.Add(1)
	return chain{gen: c.gen, user: user}, true
}

// run executes resolve-then-preferences for ch. Profile is written only
// from a successful resolution; a miss or error keeps the previous one.
// Nothing is written once ctx is done, since both lookups then report
// "absent" without having asked.
func (c *Context) run(ctx context.Context, ch chain) {
	defer c.wg.Done()

	if err := c.chains.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.chains.Release(1)

	// A chain that was superseded while queued does no work at all.
	if !c.isCurrent(ch.gen) {
		metrics.StaleWritesDropped.Inc()
		return
	}

	out := c.resolver.Resolve(ctx, ch.user)
	if out.Err != nil {
		logger.Warn("profile not resolved", map[string]any{
			"user_id": ch.user.ID,
			"error":   out.Err.Error(),
		})
	}

	if ctx.Err() != nil {
		return
	}

	if out.Found && out.Record != nil {
		if !c.apply(ch.gen, func() { c.profile = out.Record }) {
			return
		}
	} else {
		if !c.isCurrent(ch.gen) {
			metrics.StaleWritesDropped.Inc()
			return
		}
		if ch.user.Email != "" {
			c.scheduleAdminCheck(ch.gen, ch.user.Email)
		}
	}

	prefs := c.prefs.Fetch(ctx, ch.user.ID)
	if ctx.Err() != nil {
		return
	}
	if prefs == nil {
		prefs = &auth.Preferences{}
	}

	c.apply(ch.gen, func() { c.preferences = prefs })
}

// apply runs write under the lock if gen is still current.
func (c *Context) apply(gen uint64, write func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.gen != gen {
		metrics.StaleWritesDropped.Inc()
		logger.Debug("dropping stale auth write", map[string]any{
			"chain_generation":   gen,
			"current_generation": c.gen,
		})
		return false
	}

	write()
	return true
}

func (c *Context) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.gen == gen
}

// scheduleAdminCheck asks the backend, once per user, whether a user
// without a resolvable profile is an admin. A positive answer schedules a
// RefreshProfile; the check itself never sets any state but the flag.
func (c *Context) scheduleAdminCheck(gen uint64, email string) {
	if c.admin == nil {
		return
	}

	c.mu.Lock()
	if c.closed || c.gen != gen || c.adminCheckIssued {
		c.mu.Unlock()
		return
	}
	c.adminCheckIssued = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		admin, err := c.admin.IsAdminByEmail(c.lifetime, email)
		if err != nil {
			logger.Warn("admin status check failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
		if !admin {
			return
		}

		c.mu.Lock()
		cur := c.current.Load()
		stillSame := !c.closed && cur != nil && cur.Email == email
		c.mu.Unlock()
		if !stillSame {
			return
		}

		logger.Info("admin role found out of band; refreshing profile", nil)
		c.RefreshProfile(c.lifetime)
	}()
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Session:          c.current.Load(),
		Profile:          c.profile,
		Preferences:      c.preferences,
		Loading:          c.loading,
		AdminCheckIssued: c.adminCheckIssued,
	}
}

func (c *Context) IsAuthenticated() bool { return c.Snapshot().IsAuthenticated() }

func (c *Context) IsAdmin() bool { return c.Snapshot().IsAdmin() }

func (c *Context) Loading() bool { return c.Snapshot().Loading }

// User returns the current session subject.
func (c *Context) User() (auth.User, bool) {
	return c.current.Load().User()
}

// Close unsubscribes from the backend, cancels background work and waits
// for it to stop. State writes are refused from then on.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	c.wg.Wait()

	metrics.ActiveAuthContexts.Dec()
}
