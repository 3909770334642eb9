package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joshuamichael7/whattowatch-sub004/internal/api"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/account"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/credentials"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/handler"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/preferences"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider/google"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider/keycloak"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/resolver"
	"github.com/joshuamichael7/whattowatch-sub004/internal/authctx"
	"github.com/joshuamichael7/whattowatch-sub004/internal/config"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/middleware"
	"github.com/joshuamichael7/whattowatch-sub004/internal/reccache"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
	"github.com/joshuamichael7/whattowatch-sub004/internal/wizard"
)

// Recommendation service breaker settings.
const (
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Sessions and auth events
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	hub := identity.NewHub()

	bgCtx, stopBackground := context.WithCancel(ctx)
	var events identity.Publisher = hub
	if cfg.EventRelay {
		relay := identity.NewRedisRelay(infra.Redis.Client, hub)
		go func() {
			if err := relay.Run(bgCtx, nil); err != nil {
				logger.Error("auth event relay stopped", map[string]any{
					"error": err.Error(),
				})
			}
		}()
		events = relay
	}

	// ----------------------------
	// Profile resolution
	// ----------------------------

	profileSource := resolver.NewDBSource(infra.DB)
	prefsSource := preferences.NewDBSource(infra.DB)

	storage, err := infra.recommendationStorage(cfg)
	if err != nil {
		stopBackground()
		_ = infra.Close()
		return nil, nil, err
	}
	wizards := wizard.NewStore()
	caches := reccache.NewManager(storage)

	authContexts := authctx.NewRegistry(authctx.Deps{
		Store:       sessionStore,
		Hub:         hub,
		Resolver:    resolver.NewProfileResolver(profileSource),
		Preferences: preferences.NewFetcher(prefsSource),
		Admin:       profileSource,
		InitTimeout: cfg.AuthInitTimeout,
		Released: func(userID string) {
			wizards.Drop(userID)
			caches.Forget(userID)
		},
	})
	go authContexts.RunSweeper(bgCtx, cfg.SessionSweepInterval)

	cleanup := func() error {
		stopBackground()
		authContexts.CloseAll()
		return infra.Close()
	}
	fail := func(err error) (*gin.Engine, func() error, error) {
		_ = cleanup()
		return nil, nil, err
	}

	// ----------------------------
	// Sign-in
	// ----------------------------

	providers, err := setupProviders(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	authHandler := handler.NewHandler(handler.Deps{
		Providers:   providers,
		Sessions:    sessionStore,
		Linker:      account.NewLinker(infra.DB),
		Credentials: credentials.NewService(infra.DB),
		Events:      events,
		SessionTTL:  cfg.SessionTTL,
		Cookies:     session.DefaultCookieOptions(),
	})

	authMiddleware := middleware.NewAuthMiddleware(sessionStore, authContexts).
		WithRenewal(cfg.SessionTTL, session.DefaultCookieOptions(), events)

	// ----------------------------
	// Recommendations
	// ----------------------------

	recommender := recommend.NewBreakerService(
		recommend.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel),
		breakerMaxFailures,
		breakerOpenTimeout,
	)

	apiHandler := api.NewHandler(api.Deps{
		Profiles:            profileSource,
		Preferences:         prefsSource,
		Events:              events,
		Wizards:             wizards,
		Caches:              caches,
		Recommender:         recommender,
		RecommendationCount: cfg.RecommendationCount,
	})

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.CORS(cfg.CORSOrigins),
		middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
	)

	// ----------------------------
	// Public Routes
	// ----------------------------

	api.RegisterPublic(router)
	authHandler.RegisterRoutes(router)

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	protected := router.Group("/api")
	protected.Use(middleware.GinRequireAuth(authMiddleware))
	apiHandler.RegisterRoutes(protected)

	return router, cleanup, nil
}

// setupProviders builds the OAuth providers whose settings are complete.
// Email and password sign-in works without any.
func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.GoogleEnabled() {
		p, err := google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.KeycloakEnabled() {
		p, err := keycloak.New(ctx, cfg.KeycloakIssuer, cfg.KeycloakClientID, cfg.KeycloakRedirectURL, cfg.KeycloakPublicBaseURL)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	logger.Info("oauth providers ready", map[string]any{
		"providers": registry.Names(),
	})
	return registry, nil
}
