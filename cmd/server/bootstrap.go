package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/api"
	"github.com/charlesng35/timecapsule/internal/app"
	"github.com/charlesng35/timecapsule/internal/app/maintenance"
	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/cache"
	"github.com/charlesng35/timecapsule/internal/database"
	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/handlers"
	"github.com/charlesng35/timecapsule/internal/middleware"
	"github.com/charlesng35/timecapsule/internal/monitoring"
	"github.com/charlesng35/timecapsule/internal/realtime"
	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Sessions  *iauth.SessionService
	Publisher events.Publisher
	Services  *api.Services
	Cleaner   *maintenance.Cleaner
	Router    *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var store cache.Store = dbStore

	if cfg.Cache.UseRedis() {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewStoreSessionCache(store)

	stack.Sessions, err = iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	objects, err := cfg.Storage.NewObjectStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise object storage: %w", err)
	}

	stack.Publisher, err = cfg.Events.NewPublisher()
	if err != nil {
		return nil, fmt.Errorf("initialise event publisher: %w", err)
	}

	mailer, err := initialiseMailer(cfg, log)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub()

	stack.Services, err = api.NewServices(api.ServiceDeps{
		DB:       stack.DB,
		Sessions: stack.Sessions,
		Objects:  objects,
		Mailer:   mailer,
		Notifier: hub,
		Auth:     cfg.Auth.AuthServiceConfig(),
		Options:  []services.Option{services.WithEventPublisher(stack.Publisher)},
	})
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(maintenance.Jobs{
			Sessions:      stack.Sessions,
			ResetTokens:   stack.Services.Auth,
			Cache:         dbStore,
			Notifications: stack.Services.Notifications,
		},
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
			maintenance.WithNotificationSchedule(cfg.Maintenance.NotificationSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	identity := initialiseGoogleSignIn(ctx, cfg, log)

	health := monitoring.NewHealthManager(
		monitoring.Database(stack.DB, 0),
		monitoring.Cache(store, 0),
	)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:    cfg,
		DB:        stack.DB,
		JWT:       jwtSvc,
		Sessions:  stack.Sessions,
		Hub:       hub,
		RateStore: middleware.NewCacheRateStore(store),
		Cache:     store,
		Identity:  identity,
		Health:    health,
		Services:  stack.Services,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("event publisher shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Database.SeedOptions()); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

// initialiseMailer returns nil when SMTP is disabled; password reset emails are then skipped.
func initialiseMailer(cfg *app.Config, log *zap.Logger) (mail.Mailer, error) {
	if !cfg.Email.MailEnabled() {
		log.Info("smtp disabled; password reset emails will not be delivered")
		return nil, nil
	}
	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	return mailer, nil
}

// initialiseGoogleSignIn returns nil when Google sign-in is disabled or the
// issuer cannot be discovered; the routes then answer 404.
func initialiseGoogleSignIn(ctx context.Context, cfg *app.Config, log *zap.Logger) handlers.IdentityProvider {
	if !cfg.Auth.GoogleEnabled() {
		return nil
	}
	provider, err := providers.NewOIDCProvider(ctx, cfg.Auth.GoogleProviderConfig(), providers.OIDCOptions{})
	if err != nil {
		log.Warn("google sign-in unavailable", zap.Error(err))
		return nil
	}
	log.Info("google sign-in enabled", zap.String("issuer", cfg.Auth.GoogleProviderConfig().Issuer))
	return provider
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
