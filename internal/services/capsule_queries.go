package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

// visibleTo limits a capsule query to public capsules and private capsules the
// user owns or was granted access to.
func visibleTo(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(capsules.privacy = ? OR capsules.owner_id = ? OR EXISTS (SELECT 1 FROM capsule_viewers cv WHERE cv.capsule_id = capsules.id AND cv.user_id = ?))",
			models.PrivacyPublic, userID, userID,
		)
	}
}

func loadCapsule(ctx context.Context, db *gorm.DB, capsuleID string, preloads ...string) (*models.Capsule, error) {
	query := db.WithContext(ctx)
	for _, preload := range preloads {
		query = query.Preload(preload)
	}

	var capsule models.Capsule
	if err := query.Take(&capsule, "id = ?", capsuleID).Error; err != nil {
		if isNotFound(err) {
			return nil, errCapsuleNotFound
		}
		return nil, fmt.Errorf("load capsule: %w", err)
	}
	return &capsule, nil
}

func canView(ctx context.Context, db *gorm.DB, capsule *models.Capsule, userID string) (bool, error) {
	if capsule.Privacy != models.PrivacyPrivate || capsule.OwnerID == userID {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.CapsuleViewer{}).
		Where("capsule_id = ? AND user_id = ?", capsule.ID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check capsule viewer: %w", err)
	}
	return count > 0, nil
}

func requireViewer(ctx context.Context, db *gorm.DB, capsule *models.Capsule, userID string) error {
	ok, err := canView(ctx, db, capsule, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrForbidden.WithMessage("You do not have access to this capsule")
	}
	return nil
}

func requireOwner(capsule *models.Capsule, userID string) error {
	if capsule.OwnerID != userID {
		return apperrors.ErrForbidden.WithMessage("Only the capsule owner can perform this action")
	}
	return nil
}
