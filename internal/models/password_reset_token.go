package models

import "time"

// PasswordResetToken stores the SHA-256 digest of a single-use reset token.
type PasswordResetToken struct {
	BaseModel

	UserID    string     `gorm:"size:36;not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}
