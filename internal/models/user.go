package models

import "time"

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account able to own capsules, view shared ones and befriend other users.
type User struct {
	BaseModel

	Email       string `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	DisplayName string `gorm:"size:128" json:"display_name"`
	AvatarURL   string `gorm:"type:text" json:"avatar_url"`
	Role        string `gorm:"size:16;not null;default:'user'" json:"role"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:64" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
