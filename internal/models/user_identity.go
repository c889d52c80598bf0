package models

// UserIdentity links a user to an account at an external sign-in provider.
type UserIdentity struct {
	BaseModel

	UserID         string `gorm:"size:36;not null;index" json:"user_id"`
	User           *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Provider       string `gorm:"size:32;not null;uniqueIndex:idx_identity_provider_subject" json:"provider"`
	ProviderUserID string `gorm:"size:255;not null;uniqueIndex:idx_identity_provider_subject" json:"provider_user_id"`
	Email          string `gorm:"size:320" json:"email"`
}
