package models

import (
	"time"

	"gorm.io/datatypes"
)

// CapsuleStatus captures whether a capsule has been opened.
type CapsuleStatus string

const (
	CapsuleLocked CapsuleStatus = "Locked"
	CapsuleOpened CapsuleStatus = "Opened"
)

// Valid reports whether the status is one of the known values.
func (s CapsuleStatus) Valid() bool {
	return s == CapsuleLocked || s == CapsuleOpened
}

// CapsulePrivacy controls who may see a capsule.
type CapsulePrivacy string

const (
	PrivacyPublic  CapsulePrivacy = "public"
	PrivacyPrivate CapsulePrivacy = "private"
)

// Capsule is a piece of content that becomes readable at OpeningTime.
type Capsule struct {
	BaseModel

	OwnerID              string         `gorm:"size:36;not null;index" json:"owner_id"`
	Owner                *User          `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`
	Content              string         `gorm:"type:text;not null" json:"content"`
	Theme                string         `gorm:"size:128" json:"theme"`
	Description          string         `gorm:"type:text" json:"description"`
	ImageURL             string         `gorm:"type:text" json:"image_url"`
	Privacy              CapsulePrivacy `gorm:"size:16;not null;default:'public';index" json:"privacy"`
	NotificationInterval int            `gorm:"not null;default:1" json:"notification_interval"`
	OpeningTime          time.Time      `gorm:"not null;index" json:"opening_time"`
	Status               CapsuleStatus  `gorm:"size:16;not null;default:'Locked';index" json:"status"`

	Viewers   []CapsuleViewer   `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"viewers,omitempty"`
	Questions []RecallQuestion  `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
	Media     []CapsuleMedia    `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"media,omitempty"`
	Comments  []CapsuleComment  `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
	Reactions []CapsuleReaction `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"reactions,omitempty"`
}

// Openable reports whether the opening time has been reached.
func (c *Capsule) Openable(now time.Time) bool {
	return !now.Before(c.OpeningTime)
}

// CapsuleViewer grants a user read access to a private capsule.
type CapsuleViewer struct {
	BaseModel

	CapsuleID string `gorm:"size:36;not null;uniqueIndex:idx_capsule_viewer" json:"capsule_id"`
	UserID    string `gorm:"size:36;not null;uniqueIndex:idx_capsule_viewer;index" json:"user_id"`
	User      *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// RecallQuestion is a multiple choice quiz attached to a capsule.
type RecallQuestion struct {
	BaseModel

	CapsuleID     string `gorm:"size:36;not null;index" json:"capsule_id"`
	Question      string `gorm:"type:text;not null" json:"question"`
	ChoiceA       string `gorm:"type:text;not null" json:"choice_a"`
	ChoiceB       string `gorm:"type:text;not null" json:"choice_b"`
	ChoiceC       string `gorm:"type:text;not null" json:"choice_c"`
	ChoiceD       string `gorm:"type:text;not null" json:"choice_d"`
	CorrectAnswer string `gorm:"size:1;not null" json:"-"`
	Explanation   string `gorm:"type:text" json:"-"`
}

// CapsuleMedia references an object uploaded to external storage.
type CapsuleMedia struct {
	BaseModel

	CapsuleID  string         `gorm:"size:36;not null;index" json:"capsule_id"`
	URL        string         `gorm:"type:text;not null" json:"url"`
	StorageKey string         `gorm:"type:text" json:"-"`
	MediaType  string         `gorm:"size:128" json:"media_type"`
	UploadedBy string         `gorm:"size:36;index" json:"uploaded_by"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}

// CapsuleComment is free text left by a user on a capsule.
type CapsuleComment struct {
	BaseModel

	CapsuleID string `gorm:"size:36;not null;index" json:"capsule_id"`
	UserID    string `gorm:"size:36;not null;index" json:"user_id"`
	User      *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Content   string `gorm:"type:text;not null" json:"content"`
}

// CapsuleReaction is unique per (capsule, user); later reactions replace earlier ones.
type CapsuleReaction struct {
	BaseModel

	CapsuleID    string `gorm:"size:36;not null;uniqueIndex:idx_capsule_reaction" json:"capsule_id"`
	UserID       string `gorm:"size:36;not null;uniqueIndex:idx_capsule_reaction" json:"user_id"`
	User         *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	ReactionType string `gorm:"size:32;not null" json:"reaction_type"`
}
