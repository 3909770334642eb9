// Package handler serves sign-in, sign-up and sign-out. Every successful
// sign-in creates a server session, sets the session cookie and announces
// SIGNED_IN; sign-out deletes the session and announces SIGNED_OUT.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

// IdentityLinker maps a verified external identity to a user.
type IdentityLinker interface {
	Link(ctx context.Context, identity *auth.Identity) (auth.User, error)
}

// CredentialService is password sign-up and sign-in.
type CredentialService interface {
	Register(ctx context.Context, email, password string) (auth.User, error)
	Authenticate(ctx context.Context, email, password string) (auth.User, error)
}

type Deps struct {
	Providers   *provider.Registry
	Sessions    session.Store
	Linker      IdentityLinker
	Credentials CredentialService
	Events      identity.Publisher
	SessionTTL  time.Duration
	Cookies     session.CookieOptions
}

type Handler struct {
	providers   *provider.Registry
	sessions    session.Store
	linker      IdentityLinker
	credentials CredentialService
	events      identity.Publisher
	sessionTTL  time.Duration
	cookies     session.CookieOptions
}

func NewHandler(d Deps) *Handler {
	if d.SessionTTL <= 0 {
		d.SessionTTL = 24 * time.Hour
	}
	return &Handler{
		providers:   d.Providers,
		sessions:    d.Sessions,
		linker:      d.Linker,
		credentials: d.Credentials,
		events:      d.Events,
		sessionTTL:  d.SessionTTL,
		cookies:     d.Cookies,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
}

func (h *Handler) login(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	state, err := generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sign-in"})
		return
	}
	_, codeChallenge, err := generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sign-in"})
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")
	log := logger.Ctx(c.Request.Context())

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	}
	clearFlowCookie(c, stateCookieName)

	// The provider refused or the user cancelled; start over.
	if errParam := c.Query("error"); errParam != "" {
		log.Warn().
			Str("provider", providerName).
			Str("error", errParam).
			Str("desc", c.Query("error_description")).
			Msg("oidc callback returned error")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing pkce verifier"})
		return
	}
	clearFlowCookie(c, pkceCookieName)

	ident, err := p.ExchangeCode(c.Request.Context(), code, codeVerifier)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("code exchange failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	user, err := h.linker.Link(c.Request.Context(), ident)
	if err != nil {
		log.Error().Err(err).Str("provider", providerName).Msg("identity linking failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	if !h.startSession(c, user) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "authenticated", "user": user})
}

// startSession persists a session for user, sets the cookie and announces
// the sign-in. It writes the error response itself and reports false on
// failure.
func (h *Handler) startSession(c *gin.Context, user auth.User) bool {
	ctx := c.Request.Context()

	sess, err := session.New(user.ID, user.Email, h.sessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return false
	}

	if err := h.sessions.Create(ctx, sess); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("session persist failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist session"})
		return false
	}

	session.SetCookie(c.Writer, sess.SessionID, sess.ExpiresAt, h.cookies)
	h.publish(ctx, sess.SessionID, identity.EventSignedIn, &sess)

	logger.Info("login success", map[string]any{
		"user_id":    user.ID,
		"session_id": sess.SessionID,
		"ip":         c.ClientIP(),
	})
	return true
}

func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if sessionID, ok := session.IDFromRequest(c.Request); ok {
		// best-effort: the cookie is cleared regardless
		if err := h.sessions.Delete(ctx, sessionID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("session delete failed")
		}
		h.publish(ctx, sessionID, identity.EventSignedOut, nil)

		logger.Info("logout", map[string]any{
			"session_id": sessionID,
			"ip":         c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.cookies)
	c.Status(http.StatusNoContent)
}

func (h *Handler) publish(ctx context.Context, sessionID string, event identity.Event, sess *session.Session) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, sessionID, event, sess); err != nil {
		logger.Warn("auth event publish failed", map[string]any{
			"event": string(event),
			"error": err.Error(),
		})
	}
}
