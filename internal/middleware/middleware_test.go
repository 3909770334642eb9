package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/authctx"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

type staticResolver struct{ profile *auth.Profile }

func (r staticResolver) Resolve(ctx context.Context, user auth.User) auth.LookupOutcome {
	return auth.LookupOutcome{Found: r.profile != nil, Record: r.profile}
}

type noPrefs struct{}

func (noPrefs) Fetch(context.Context, string) *auth.Preferences { return nil }

func newAuthRouter(t *testing.T) (*gin.Engine, *session.RedisStore, *authctx.Registry, *AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewRedisStore(client)
	reg := authctx.NewRegistry(authctx.Deps{
		Store:       store,
		Hub:         identity.NewHub(),
		Resolver:    staticResolver{profile: &auth.Profile{ID: "u1", Role: auth.RoleAdmin}},
		Preferences: noPrefs{},
		InitTimeout: time.Second,
	})
	t.Cleanup(reg.CloseAll)

	mw := NewAuthMiddleware(store, reg)

	r := gin.New()
	r.Use(RequestID())
	api := r.Group("/api", GinRequireAuth(mw))
	api.GET("/me", func(c *gin.Context) {
		sess, ok := SessionFromContext(c.Request.Context())
		require.True(t, ok)
		ac, ok := AuthContextFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID, "admin": ac.IsAdmin()})
	})

	return r, store, reg, mw
}

func get(r http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthAttachesSessionAndAuthContext(t *testing.T) {
	r, store, reg, _ := newAuthRouter(t)

	sess, err := session.New("u1", "a@x.com", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), sess))

	w := get(r, "/api/me", &http.Cookie{Name: session.CookieName, Value: sess.SessionID})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u1","admin":true}`, w.Body.String())
	assert.Equal(t, 1, reg.Len())
}

func TestRequireAuthRejects(t *testing.T) {
	r, _, reg, _ := newAuthRouter(t)

	w := get(r, "/api/me")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/api/me", &http.Cookie{Name: session.CookieName, Value: "unknown"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, reg.Len())
}

func TestRequireAuthDropsExpiredSession(t *testing.T) {
	r, store, reg, mw := newAuthRouter(t)
	ctx := context.Background()

	sess, err := session.New("u1", "", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, sess))
	cookie := &http.Cookie{Name: session.CookieName, Value: sess.SessionID}

	require.Equal(t, http.StatusOK, get(r, "/api/me", cookie).Code)
	require.Equal(t, 1, reg.Len())

	// Stored but past its expiry, e.g. clock skew against the Redis TTL.
	mw.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/me", cookie).Code)
	assert.Equal(t, 0, reg.Len())

	got, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

type eventLog struct {
	mu     sync.Mutex
	events []identity.Event
}

func (l *eventLog) Publish(ctx context.Context, sessionID string, event identity.Event, sess *session.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func TestRequireAuthRenewsSession(t *testing.T) {
	r, store, _, mw := newAuthRouter(t)
	ctx := context.Background()
	events := &eventLog{}
	mw.WithRenewal(time.Hour, session.DefaultCookieOptions(), events)

	sess, err := session.New("u1", "", 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, sess))
	cookie := &http.Cookie{Name: session.CookieName, Value: sess.SessionID}

	w := get(r, "/api/me", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var reissued *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			reissued = c
		}
	}
	require.NotNil(t, reissued)
	assert.Equal(t, sess.SessionID, reissued.Value)

	got, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 5*time.Second)
	assert.Equal(t, []identity.Event{identity.EventTokenRefreshed}, events.events)

	// Freshly renewed; nothing more to do.
	w = get(r, "/api/me", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, events.events, 1)
}

func TestRequestIDIsGeneratedOrReused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestIDFromContext(c.Request.Context()))
	})

	w := get(r, "/id")
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/x").Code)
	assert.Equal(t, http.StatusOK, get(r, "/x").Code)

	w := get(r, "/x")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(0, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/x").Code)
	}
}
