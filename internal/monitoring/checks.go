package monitoring

import (
	"bytes"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/cache"
)

const (
	defaultCheckTimeout = 2 * time.Second
	cacheCheckKey       = "health:check"
	cacheCheckTTL       = 30 * time.Second
)

// Database returns a check that pings the database handle.
func Database(db *gorm.DB, timeout time.Duration) Check {
	return NewCheck("database", func(ctx context.Context) CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError(err, time.Since(start))
		}

		checkCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		return ResultFromError(sqlDB.PingContext(checkCtx), time.Since(start))
	})
}

// Cache returns a check that round-trips a short-lived key through the store.
func Cache(store cache.Store, timeout time.Duration) Check {
	return NewCheck("cache", func(ctx context.Context) CheckResult {
		start := time.Now()
		if store == nil {
			return CheckResult{Status: StatusDegraded, Details: "cache not configured"}
		}

		checkCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		payload := []byte(start.UTC().Format(time.RFC3339Nano))
		if err := store.Set(checkCtx, cacheCheckKey, payload, cacheCheckTTL); err != nil {
			return ResultFromError(err, time.Since(start))
		}
		value, ok, err := store.Get(checkCtx, cacheCheckKey)
		if err == nil && (!ok || !bytes.Equal(value, payload)) {
			err = errors.New("cache check value mismatch")
		}
		return ResultFromError(err, time.Since(start))
	})
}

func chooseTimeout(provided time.Duration) time.Duration {
	if provided <= 0 {
		return defaultCheckTimeout
	}
	return provided
}
