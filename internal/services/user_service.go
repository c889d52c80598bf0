package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/storage"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

const avatarPrefix = "avatars"

// UpdateProfileInput lists the profile fields a user can change.
type UpdateProfileInput struct {
	DisplayName *string
	Email       *string
}

// UserService serves and updates user profiles.
type UserService struct {
	db      *gorm.DB
	storage storage.ObjectStorage
	opts    options
	log     *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, objects storage.ObjectStorage, opts ...Option) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, storage: objects, opts: buildOptions(opts), log: serviceLogger("users")}, nil
}

// Me loads the user's own profile.
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", userID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFound("User not found")
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the supplied profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, apperrors.NewBadRequest("display name cannot be empty")
		}
		updates["display_name"] = name
	}
	if input.Email != nil {
		email := normaliseEmail(*input.Email)
		if email == "" {
			return nil, apperrors.NewBadRequest("email cannot be empty")
		}
		updates["email"] = email
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, conflictOnDuplicate(err, ErrEmailTaken, "user service: update profile")
	}
	return s.Me(ctx, userID)
}

// UploadAvatar stores a new avatar image and records its URL.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, upload storage.Upload) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	upload, err = storage.DetectContentType(upload)
	if err != nil {
		return nil, fmt.Errorf("user service: read avatar: %w", err)
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return nil, apperrors.NewBadRequest("avatar must be an image")
	}

	stored, err := storage.Store(ctx, s.storage, avatarPrefix, []storage.Upload{upload}, s.opts.now)
	if err != nil {
		return nil, fmt.Errorf("user service: upload avatar: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("avatar_url", stored[0].URL).Error; err != nil {
		if removeErr := storage.Remove(context.WithoutCancel(ctx), s.storage, stored); removeErr != nil {
			s.log.Warn("remove avatar after failed update", zap.Error(removeErr))
		}
		return nil, fmt.Errorf("user service: set avatar: %w", err)
	}
	user.AvatarURL = stored[0].URL
	return user, nil
}
