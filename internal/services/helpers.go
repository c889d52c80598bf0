package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/pkg/logger"
)

// Option customises a service at construction time.
type Option func(*options)

type options struct {
	now       func() time.Time
	publisher events.Publisher
}

// WithClock replaces time.Now. Returned instants are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = func() time.Time { return now().UTC() }
		}
	}
}

// WithEventPublisher sends capsule lifecycle events to publisher.
func WithEventPublisher(publisher events.Publisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) publish(ctx context.Context, log *zap.Logger, event events.Event) {
	if o.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		log.Warn("publish capsule event", zap.String("type", event.Type), zap.String("capsule_id", event.CapsuleID), zap.Error(err))
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func serviceLogger(name string) *zap.Logger {
	return logger.WithModule(name)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func containsString(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}
