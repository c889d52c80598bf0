package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/app"
	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/cache"
	"github.com/charlesng35/timecapsule/internal/handlers"
	"github.com/charlesng35/timecapsule/internal/middleware"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/monitoring"
	"github.com/charlesng35/timecapsule/internal/realtime"
)

// Dependencies carries everything NewRouter wires into handlers.
type Dependencies struct {
	Config    *app.Config
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionService
	Hub       *realtime.Hub
	RateStore middleware.RateStore
	Cache     cache.Store
	Identity  handlers.IdentityProvider
	Health    *monitoring.HealthManager
	Services  *Services
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.DB == nil {
		return nil, errors.New("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session service must be provided")
	}
	if deps.Services == nil {
		return nil, errors.New("services must be provided")
	}
	if deps.Hub == nil {
		deps.Hub = realtime.NewHub()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewDatabaseStore(deps.DB)
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealthManager(monitoring.Database(deps.DB, 0))
	}
	cfg := deps.Config
	svc := deps.Services

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.RateLimit(deps.RateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window))

	r.GET("/health", handlers.Health)
	r.GET("/health/ready", handlers.Readiness(deps.Health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); (driver == "" || driver == "local") && cfg.Storage.Local.Root != "" {
		r.Static("/uploads", cfg.Storage.Local.Root)
	}

	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Sessions)
	r.GET("/ws", realtimeHandler.Stream)

	credentialLimiter := middleware.NewClientLimiter(credentialInterval(cfg), cfg.RateLimit.Credential.Burst)

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.Auth(deps.JWT, deps.Sessions))

	maxUpload := cfg.Server.MaxUploadMB << 20

	registerAuthRoutes(api, protected, authRouteDeps{
		Handler:      handlers.NewAuthHandler(svc.Auth),
		OAuth:        handlers.NewOAuthHandler(deps.Identity, providers.NewAttemptStore(deps.Cache, 0), svc.Auth),
		CredentialRL: credentialLimiter.Middleware(),
	})
	registerCapsuleRoutes(protected, handlers.NewCapsuleHandler(svc.Capsules, svc.Lifecycle, svc.Dashboard, maxUpload))
	registerSocialRoutes(protected, socialRouteDeps{
		Notifications: handlers.NewNotificationHandler(svc.Notifications),
		Profile:       handlers.NewProfileHandler(svc.Users, svc.Capsules, svc.Friends, svc.Notifications, maxUpload),
		Friends:       handlers.NewFriendHandler(svc.Friends),
	})
	registerAdvertisementRoutes(api, protected, handlers.NewAdvertisementHandler(svc.Ads), middleware.RequireRole(models.RoleAdmin))

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}

func credentialInterval(cfg *app.Config) time.Duration {
	if cfg.RateLimit.Credential.Interval > 0 {
		return cfg.RateLimit.Credential.Interval
	}
	return 6 * time.Second
}
