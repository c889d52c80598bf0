package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/realtime"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

const (
	// MaxNotificationInterval bounds the number of daily reminders per capsule.
	MaxNotificationInterval = 30
	// NotificationPageSize is the number of unread notifications returned per read.
	NotificationPageSize = 10
)

// NotificationService generates reminder rows for capsules and serves a user's
// unread notifications.
type NotificationService struct {
	db       *gorm.DB
	notifier realtime.Notifier
	opts     options
	log      *zap.Logger
}

// NewNotificationService constructs a NotificationService. notifier may be nil.
func NewNotificationService(db *gorm.DB, notifier realtime.Notifier, opts ...Option) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:       db,
		notifier: notifier,
		opts:     buildOptions(opts),
		log:      serviceLogger("notifications"),
	}, nil
}

// WithTx returns a copy of the service bound to tx.
func (s *NotificationService) WithTx(tx *gorm.DB) *NotificationService {
	cpy := *s
	cpy.db = tx
	return &cpy
}

// CreateScheduledForCapsule inserts one reminder per day for the interval days
// up to and including the opening day. Reminders that would already be in the
// past are skipped. It returns the number of reminders generated.
func (s *NotificationService) CreateScheduledForCapsule(ctx context.Context, capsuleID, ownerID string, openingTime time.Time, interval int) (int, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(capsuleID) == "" || strings.TrimSpace(ownerID) == "" {
		return 0, apperrors.NewBadRequest("capsule and owner are required")
	}
	if openingTime.IsZero() {
		return 0, errOpeningTimeRequired
	}
	if interval < 1 || interval > MaxNotificationInterval {
		return 0, errNotificationInterval
	}

	rows := ScheduleReminders(capsuleID, ownerID, openingTime.UTC(), interval, s.opts.now())
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("notification service: create reminders: %w", err)
	}

	metrics.NotificationsGenerated.WithLabelValues("scheduled").Add(float64(len(rows)))
	return len(rows), nil
}

// ScheduleReminders computes the reminder rows for a capsule without touching storage.
func ScheduleReminders(capsuleID, ownerID string, openingTime time.Time, interval int, now time.Time) []models.Notification {
	message := "Your capsule will be openable on " + openingTime.UTC().Format(time.RFC3339Nano)

	rows := make([]models.Notification, 0, interval)
	for i := 0; i < interval; i++ {
		notiTime := openingTime.Add(-time.Duration(i) * 24 * time.Hour)
		if !notiTime.After(now) {
			continue
		}
		id := capsuleID
		rows = append(rows, models.Notification{
			UserID:    ownerID,
			CapsuleID: &id,
			Type:      models.NotificationCapsuleOpening,
			Message:   message,
			NotiTime:  notiTime,
		})
	}
	return rows
}

// CreateImmediate stores an already sent notification and pushes it to the user's stream.
func (s *NotificationService) CreateImmediate(ctx context.Context, userID string, kind models.NotificationType, message string, capsuleID *string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewBadRequest("message is required")
	}

	notification := models.Notification{
		UserID:    userID,
		CapsuleID: capsuleID,
		Type:      kind,
		Message:   strings.TrimSpace(message),
		NotiTime:  s.opts.now(),
		IsSent:    true,
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsGenerated.WithLabelValues("immediate").Inc()
	s.push(userID, notification)
	return &notification, nil
}

// ListForUser promotes the user's due reminders, returns the newest unread sent
// notifications and marks them read, all in one transaction.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	now := s.opts.now()
	var rows []models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promoted := tx.Model(&models.Notification{}).
			Where("user_id = ? AND is_sent = ? AND noti_time <= ?", userID, false, now).
			Update("is_sent", true)
		if promoted.Error != nil {
			return fmt.Errorf("promote due notifications: %w", promoted.Error)
		}
		if promoted.RowsAffected > 0 {
			metrics.NotificationsPromoted.WithLabelValues("read").Add(float64(promoted.RowsAffected))
		}

		if err := tx.Where("user_id = ? AND is_sent = ? AND is_read = ?", userID, true, false).
			Order("noti_time DESC").
			Limit(NotificationPageSize).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("load notifications: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if err := tx.Model(&models.Notification{}).
			Where("id IN ?", ids).
			Update("is_read", true).Error; err != nil {
			return fmt.Errorf("mark notifications read: %w", err)
		}
		for i := range rows {
			rows[i].IsRead = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: list: %w", err)
	}
	return rows, nil
}

// PromoteDue flips every due reminder to sent and returns them grouped by user.
// Connected users receive the promoted rows on their notification stream.
func (s *NotificationService) PromoteDue(ctx context.Context) (map[string][]models.Notification, error) {
	ctx = ensureContext(ctx)
	now := s.opts.now()

	var due []models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_sent = ? AND noti_time <= ?", false, now).
			Order("noti_time ASC").
			Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]string, 0, len(due))
		for _, row := range due {
			ids = append(ids, row.ID)
		}
		return tx.Model(&models.Notification{}).
			Where("id IN ? AND is_sent = ?", ids, false).
			Update("is_sent", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: promote due: %w", err)
	}

	grouped := make(map[string][]models.Notification)
	for _, row := range due {
		row.IsSent = true
		grouped[row.UserID] = append(grouped[row.UserID], row)
	}
	if len(due) > 0 {
		metrics.NotificationsPromoted.WithLabelValues("maintenance").Add(float64(len(due)))
		s.log.Debug("promoted due notifications", zap.Int("count", len(due)), zap.Int("users", len(grouped)))
	}

	for userID, rows := range grouped {
		if s.notifier != nil {
			s.notifier.SendToUser(realtime.StreamNotifications, userID, realtime.Message{
				Event: realtime.EventNotificationsDue,
				Data:  rows,
			})
		}
	}
	return grouped, nil
}

func (s *NotificationService) push(userID string, notification models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendToUser(realtime.StreamNotifications, userID, realtime.Message{
		Event: realtime.EventNotificationCreated,
		Data:  notification,
	})
}
