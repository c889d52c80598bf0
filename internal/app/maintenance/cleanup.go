package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

const (
	defaultSessionSpec      = "@hourly"
	defaultTokenSpec        = "@daily"
	defaultCacheSpec        = "@every 10m"
	defaultNotificationSpec = "@every 1m"

	jobTimeout = 2 * time.Minute
)

// SessionCleaner removes expired and revoked sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// ResetTokenCleaner removes consumed or expired password reset tokens.
type ResetTokenCleaner interface {
	CleanupResetTokens(ctx context.Context) (int64, error)
}

// CachePurger drops expired cache rows.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NotificationPromoter marks due scheduled notifications as sent and pushes them.
type NotificationPromoter interface {
	PromoteDue(ctx context.Context) (map[string][]models.Notification, error)
}

// Jobs lists the maintenance dependencies. A nil entry disables that job.
type Jobs struct {
	Sessions      SessionCleaner
	ResetTokens   ResetTokenCleaner
	Cache         CachePurger
	Notifications NotificationPromoter
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as purging expired sessions,
// removing stale reset tokens and promoting due capsule reminders.
type Cleaner struct {
	jobs []job
	cron *cron.Cron
	log  *zap.Logger

	sessionSchedule      string
	tokenSchedule        string
	cacheSchedule        string
	notificationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for reset token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithNotificationSchedule overrides the cron specification for notification promotion.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(deps Jobs, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessionSchedule:      defaultSessionSpec,
		tokenSchedule:        defaultTokenSpec,
		cacheSchedule:        defaultCacheSpec,
		notificationSchedule: defaultNotificationSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if deps.Sessions != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: "sessions", spec: cleaner.sessionSchedule, run: deps.Sessions.CleanupExpired})
	}
	if deps.ResetTokens != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: "reset_tokens", spec: cleaner.tokenSchedule, run: deps.ResetTokens.CleanupResetTokens})
	}
	if deps.Cache != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: "cache", spec: cleaner.cacheSchedule, run: deps.Cache.PurgeExpired})
	}
	if deps.Notifications != nil {
		promoter := deps.Notifications
		cleaner.jobs = append(cleaner.jobs, job{name: "notifications", spec: cleaner.notificationSchedule, run: func(ctx context.Context) (int64, error) {
			grouped, err := promoter.PromoteDue(ctx)
			var total int64
			for _, rows := range grouped {
				total += int64(len(rows))
			}
			return total, err
		}})
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is configured.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			_ = c.execute(ctx, j)
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially and aggregates their failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	affected, err := j.run(ctx)
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues(j.name, "failure").Inc()
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	metrics.MaintenanceRuns.WithLabelValues(j.name, "success").Inc()
	if affected > 0 {
		c.log.Debug("maintenance job completed", zap.String("job", j.name), zap.Int64("affected", affected))
	}
	return nil
}
