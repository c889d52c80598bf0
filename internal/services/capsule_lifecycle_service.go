package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/storage"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

// CapsuleLifecycleService moves capsules between Locked and Opened and deletes them.
type CapsuleLifecycleService struct {
	db      *gorm.DB
	storage storage.ObjectStorage
	opts    options
	log     *zap.Logger
}

// NewCapsuleLifecycleService constructs the lifecycle workflow. objects may be nil
// when no media storage is configured.
func NewCapsuleLifecycleService(db *gorm.DB, objects storage.ObjectStorage, opts ...Option) (*CapsuleLifecycleService, error) {
	if db == nil {
		return nil, errors.New("capsule lifecycle service: db is required")
	}
	return &CapsuleLifecycleService{
		db:      db,
		storage: objects,
		opts:    buildOptions(opts),
		log:     serviceLogger("capsule_lifecycle"),
	}, nil
}

// RequestOpen opens the capsule once its opening time has been reached.
// Opening an already opened capsule succeeds.
func (s *CapsuleLifecycleService) RequestOpen(ctx context.Context, capsuleID, userID string) (*models.Capsule, error) {
	ctx = ensureContext(ctx)

	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	if !capsule.Openable(now) {
		metrics.CapsuleTransitions.WithLabelValues("open", "rejected").Inc()
		return nil, apperrors.ErrCapsuleNotOpenable
	}

	result := s.db.WithContext(ctx).Model(&models.Capsule{}).
		Where("id = ? AND opening_time <= ?", capsule.ID, now).
		Update("status", models.CapsuleOpened)
	if result.Error != nil {
		return nil, fmt.Errorf("capsule lifecycle service: open capsule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.CapsuleTransitions.WithLabelValues("open", "rejected").Inc()
		return nil, apperrors.ErrCapsuleNotOpenable
	}

	capsule.Status = models.CapsuleOpened
	metrics.CapsuleTransitions.WithLabelValues("open", "success").Inc()
	s.opts.publish(ctx, s.log, events.Event{Type: events.CapsuleOpened, CapsuleID: capsule.ID, UserID: userID})
	return capsule, nil
}

// Abort locks the capsule again regardless of its current status.
func (s *CapsuleLifecycleService) Abort(ctx context.Context, capsuleID string) (*models.Capsule, error) {
	ctx = ensureContext(ctx)

	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Capsule{}).
		Where("id = ?", capsule.ID).
		Update("status", models.CapsuleLocked).Error; err != nil {
		return nil, fmt.Errorf("capsule lifecycle service: abort capsule: %w", err)
	}

	capsule.Status = models.CapsuleLocked
	metrics.CapsuleTransitions.WithLabelValues("abort", "success").Inc()
	s.opts.publish(ctx, s.log, events.Event{Type: events.CapsuleAborted, CapsuleID: capsule.ID})
	return capsule, nil
}

// Delete removes a capsule owned by userID together with its children. Stored
// media objects are removed afterwards; failures there are only logged.
func (s *CapsuleLifecycleService) Delete(ctx context.Context, capsuleID, userID string) error {
	ctx = ensureContext(ctx)

	capsule, err := loadCapsule(ctx, s.db, capsuleID, "Media")
	if err != nil {
		return err
	}
	if err := requireOwner(capsule, userID); err != nil {
		metrics.CapsuleTransitions.WithLabelValues("delete", "rejected").Inc()
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Capsule{}, "id = ?", capsule.ID).Error; err != nil {
		return fmt.Errorf("capsule lifecycle service: delete capsule: %w", err)
	}
	metrics.CapsuleTransitions.WithLabelValues("delete", "success").Inc()

	objects := make([]storage.StoredObject, 0, len(capsule.Media))
	for _, media := range capsule.Media {
		objects = append(objects, storage.StoredObject{Key: media.StorageKey})
	}
	if err := storage.Remove(ctx, s.storage, objects); err != nil {
		s.log.Warn("remove capsule media", zap.String("capsule_id", capsule.ID), zap.Error(err))
	}

	s.opts.publish(ctx, s.log, events.Event{Type: events.CapsuleDeleted, CapsuleID: capsule.ID, UserID: userID})
	return nil
}
