package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/timecapsule/internal/app"
	"github.com/charlesng35/timecapsule/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &app.Config{
		Server: app.ServerConfig{Port: 0},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dir, "timecapsule.sqlite"),
			Seed: app.SeedConfig{
				AdminEmail:    "admin@example.com",
				AdminPassword: "Adm1n$ecret",
			},
		},
		Storage: app.StorageConfig{
			Driver: "local",
			Local: app.LocalStorageConfig{
				Root:    filepath.Join(dir, "uploads"),
				BaseURL: "http://localhost:8000/uploads",
			},
		},
		RateLimit: app.RateLimitConfig{Requests: 100, Window: time.Minute},
		Maintenance: app.MaintenanceConfig{
			Enabled:              true,
			SessionSchedule:      "@hourly",
			TokenSchedule:        "@daily",
			CacheSchedule:        "@every 10m",
			NotificationSchedule: "@every 1m",
		},
	}
	_, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntime(t *testing.T) {
	cfg := testConfig(t)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Cleaner)
	require.Nil(t, stack.Redis)

	var admin models.User
	require.NoError(t, stack.DB.Take(&admin, "email = ?", "admin@example.com").Error)
	require.Equal(t, models.RoleAdmin, admin.Role)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBootstrapRuntimeFallsBackWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Address = "127.0.0.1:1"
	cfg.Cache.Redis.Timeout = 200 * time.Millisecond

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Redis)
	require.Nil(t, stack.Cleaner)
}

func TestBootstrapRuntimeSkipsUnreachableGoogleIssuer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false
	cfg.Auth.Google = app.GoogleSettings{
		Enabled:      true,
		Issuer:       "http://127.0.0.1:1",
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8000/api/auth/google/callback",
	}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBootstrapRuntimeRejectsUnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "ftp"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "object storage")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestRunHelp(t *testing.T) {
	err := run(context.Background(), []string{"-h"})
	require.ErrorIs(t, err, flag.ErrHelp)
}
