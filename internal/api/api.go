// Package api serves the authenticated JSON routes under /api. Every
// handler expects the session and its auth context to have been attached
// by middleware.RequireAuth.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/authctx"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/middleware"
	"github.com/joshuamichael7/whattowatch-sub004/internal/reccache"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
	"github.com/joshuamichael7/whattowatch-sub004/internal/wizard"
)

type ProfileWriter interface {
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error
}

type PreferenceWriter interface {
	SavePreferences(ctx context.Context, userID string, p auth.Preferences) error
}

type Deps struct {
	Profiles    ProfileWriter
	Preferences PreferenceWriter
	Events      identity.Publisher
	Wizards     *wizard.Store
	Caches      *reccache.Manager
	Recommender recommend.Service
	// RecommendationCount is how many titles each request asks for.
	RecommendationCount int
}

type Handler struct {
	profiles    ProfileWriter
	preferences PreferenceWriter
	events      identity.Publisher
	wizards     *wizard.Store
	caches      *reccache.Manager
	recommender recommend.Service
	count       int
}

var validate = validator.New()

func NewHandler(d Deps) *Handler {
	if d.RecommendationCount <= 0 {
		d.RecommendationCount = recommend.DefaultCount
	}
	if d.Wizards == nil {
		d.Wizards = wizard.NewStore()
	}
	return &Handler{
		profiles:    d.Profiles,
		preferences: d.Preferences,
		events:      d.Events,
		wizards:     d.Wizards,
		caches:      d.Caches,
		recommender: d.Recommender,
		count:       d.RecommendationCount,
	}
}

// RegisterRoutes mounts the authenticated routes on r, which must already
// carry the auth middleware.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/me", h.me)
	r.POST("/profile/refresh", h.refreshProfile)
	r.PATCH("/profile", h.updateProfile)
	r.PUT("/preferences", h.savePreferences)

	w := r.Group("/wizard")
	w.GET("", h.wizardState)
	w.POST("/answer", h.wizardAnswer)
	w.POST("/back", h.wizardBack)
	w.POST("/saved", h.wizardSaved)
	w.POST("/submit", h.wizardSubmit)
	w.POST("/dismiss", h.wizardDismiss)
	w.POST("/reset", h.wizardReset)

	rec := r.Group("/recommendations")
	rec.GET("", h.recommendations)
	rec.PUT("/selected", h.selectRecommendation)
	rec.POST("/similar", h.similar)
	rec.DELETE("", h.clearRecommendations)
}

// RegisterPublic mounts the unauthenticated operational routes.
func RegisterPublic(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// caller returns the auth context and signed-in user of the request. It
// writes a 401 and reports false when either is missing.
func caller(c *gin.Context) (*authctx.Context, auth.User, bool) {
	ac, ok := middleware.AuthContextFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, auth.User{}, false
	}
	user, ok := ac.User()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, auth.User{}, false
	}
	return ac, user, true
}

func (h *Handler) publish(ctx context.Context, event identity.Event) {
	if h.events == nil {
		return
	}
	sess, ok := middleware.SessionFromContext(ctx)
	if !ok {
		return
	}
	if err := h.events.Publish(ctx, sess.SessionID, event, sess); err != nil {
		logger.Warn("auth event publish failed", map[string]any{
			"event": string(event),
			"error": err.Error(),
		})
	}
}
