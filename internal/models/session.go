package models

import "time"

// Session backs a refresh token issued at login.
type Session struct {
	BaseModel

	UserID       string     `gorm:"size:36;not null;index" json:"user_id"`
	User         *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RefreshToken string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	IPAddress    string     `gorm:"size:64" json:"ip_address"`
	UserAgent    string     `gorm:"type:text" json:"user_agent"`
	ExpiresAt    time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt   time.Time  `json:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at"`
}

// Active reports whether the session can still be refreshed at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
