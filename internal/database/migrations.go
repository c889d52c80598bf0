package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.UserIdentity{},
		&models.PasswordResetToken{},
		&models.Capsule{},
		&models.CapsuleViewer{},
		&models.RecallQuestion{},
		&models.CapsuleMedia{},
		&models.CapsuleComment{},
		&models.CapsuleReaction{},
		&models.Notification{},
		&models.Advertisement{},
		&models.FriendRequest{},
		&models.Friend{},
		&models.CacheEntry{},
	)
}

// SeedOptions controls the bootstrap data written at start-up.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
}

// SeedData ensures the bootstrap administrator exists. It never overwrites an existing account.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" {
		return nil
	}
	if strings.TrimSpace(opts.AdminPassword) == "" {
		return errors.New("admin password is required when admin email is set")
	}

	var existing models.User
	err := db.Where("email = ?", email).Take(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			return db.Model(&existing).Update("role", models.RoleAdmin).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := crypto.HashPassword(opts.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		Email:       email,
		Password:    hash,
		DisplayName: "Administrator",
		Role:        models.RoleAdmin,
		IsActive:    true,
	}
	return db.Create(&admin).Error
}
