package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/joshuamichael7/whattowatch-sub004/internal/authctx"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

// unexported, collision-proof context keys
type (
	sessionContextKeyType struct{}
	authContextKeyType    struct{}
)

var (
	sessionKey = sessionContextKeyType{}
	authCtxKey = authContextKeyType{}
)

// SessionFromContext returns the session attached by RequireAuth.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// AuthContextFromContext returns the auth context attached by RequireAuth.
func AuthContextFromContext(ctx context.Context) (*authctx.Context, bool) {
	c, ok := ctx.Value(authCtxKey).(*authctx.Context)
	return c, ok && c != nil
}

// AuthContexts hands out the per-session auth context.
type AuthContexts interface {
	Get(ctx context.Context, sessionID string) *authctx.Context
	Drop(sessionID string)
}

type AuthMiddleware struct {
	Store    session.Store
	Contexts AuthContexts
	now      func() time.Time

	// sliding renewal, off while ttl is zero
	ttl     time.Duration
	cookies session.CookieOptions
	events  identity.Publisher
}

func NewAuthMiddleware(store session.Store, contexts AuthContexts) *AuthMiddleware {
	return &AuthMiddleware{Store: store, Contexts: contexts, now: time.Now}
}

// WithRenewal extends sessions that are past half of ttl, reissues the
// cookie and publishes TOKEN_REFRESHED for them.
func (a *AuthMiddleware) WithRenewal(ttl time.Duration, cookies session.CookieOptions, events identity.Publisher) *AuthMiddleware {
	a.ttl = ttl
	a.cookies = cookies
	a.events = events
	return a
}

// RequireAuth rejects requests without a live session. Expired sessions
// are deleted along with their auth context.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := session.IDFromRequest(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		sess, err := a.Store.Get(r.Context(), sessionID)
		if err != nil {
			logger.Ctx(r.Context()).Warn().Err(err).Msg("session lookup failed")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if sess == nil {
			a.Contexts.Drop(sessionID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if sess.IsExpired(a.now()) {
			_ = a.Store.Delete(r.Context(), sessionID)
			a.Contexts.Drop(sessionID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if renewed, ok := sess.Renewed(a.ttl, a.now()); ok {
			sess = a.renew(w, r, sess, renewed)
		}

		ctx := logger.WithSessionID(r.Context(), sessionID)
		ctx = context.WithValue(ctx, sessionKey, sess)
		ctx = context.WithValue(ctx, authCtxKey, a.Contexts.Get(ctx, sessionID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// renew persists the extended session and returns it, or returns current
// if the write failed.
func (a *AuthMiddleware) renew(w http.ResponseWriter, r *http.Request, current *session.Session, renewed session.Session) *session.Session {
	ctx := r.Context()
	if err := a.Store.Update(ctx, renewed); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("session renewal failed")
		return current
	}

	session.SetCookie(w, renewed.SessionID, renewed.ExpiresAt, a.cookies)
	if a.events != nil {
		if err := a.events.Publish(ctx, renewed.SessionID, identity.EventTokenRefreshed, &renewed); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("token refresh publish failed")
		}
	}
	return &renewed
}
