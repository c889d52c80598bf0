package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

// CreateAdvertisementInput describes a new advertisement.
type CreateAdvertisementInput struct {
	Title        string
	MediaURL     string
	TargetURL    string
	DisplayOrder *int
	IsActive     *bool
}

// UpdateAdvertisementInput lists the mutable advertisement attributes.
type UpdateAdvertisementInput struct {
	Title        *string
	MediaURL     *string
	TargetURL    *string
	DisplayOrder *int
	IsActive     *bool
}

// AdvertisementService manages the ads shown on the dashboard.
type AdvertisementService struct {
	db *gorm.DB
}

// NewAdvertisementService constructs an AdvertisementService.
func NewAdvertisementService(db *gorm.DB) (*AdvertisementService, error) {
	if db == nil {
		return nil, errors.New("advertisement service: db is required")
	}
	return &AdvertisementService{db: db}, nil
}

// Create stores a new advertisement. It is active and ordered first unless specified.
func (s *AdvertisementService) Create(ctx context.Context, input CreateAdvertisementInput) (*models.Advertisement, error) {
	ad := models.Advertisement{
		Title:     strings.TrimSpace(input.Title),
		MediaURL:  strings.TrimSpace(input.MediaURL),
		TargetURL: strings.TrimSpace(input.TargetURL),
		IsActive:  true,
	}
	if ad.Title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	if ad.MediaURL == "" {
		return nil, apperrors.NewBadRequest("media url is required")
	}
	if input.DisplayOrder != nil {
		ad.DisplayOrder = *input.DisplayOrder
	}
	if input.IsActive != nil {
		ad.IsActive = *input.IsActive
	}

	if err := s.db.WithContext(ensureContext(ctx)).Create(&ad).Error; err != nil {
		return nil, fmt.Errorf("advertisement service: create: %w", err)
	}
	return &ad, nil
}

// Update applies the supplied fields to the advertisement.
func (s *AdvertisementService) Update(ctx context.Context, id string, input UpdateAdvertisementInput) (*models.Advertisement, error) {
	ctx = ensureContext(ctx)

	ad, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewBadRequest("title cannot be empty")
		}
		updates["title"] = title
	}
	if input.MediaURL != nil {
		mediaURL := strings.TrimSpace(*input.MediaURL)
		if mediaURL == "" {
			return nil, apperrors.NewBadRequest("media url cannot be empty")
		}
		updates["media_url"] = mediaURL
	}
	if input.TargetURL != nil {
		updates["target_url"] = strings.TrimSpace(*input.TargetURL)
	}
	if input.DisplayOrder != nil {
		updates["display_order"] = *input.DisplayOrder
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return ad, nil
	}

	if err := s.db.WithContext(ctx).Model(ad).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("advertisement service: update: %w", err)
	}
	return s.Get(ctx, id)
}

// ListActive returns active advertisements by display order.
func (s *AdvertisementService) ListActive(ctx context.Context) ([]models.Advertisement, error) {
	var ads []models.Advertisement
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Order("created_at ASC").
		Find(&ads).Error; err != nil {
		return nil, fmt.Errorf("advertisement service: list active: %w", err)
	}
	return ads, nil
}

// Get loads an advertisement by id.
func (s *AdvertisementService) Get(ctx context.Context, id string) (*models.Advertisement, error) {
	var ad models.Advertisement
	if err := s.db.WithContext(ensureContext(ctx)).Take(&ad, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFound("Advertisement not found")
		}
		return nil, fmt.Errorf("advertisement service: load: %w", err)
	}
	return &ad, nil
}
