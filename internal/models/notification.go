package models

import "time"

// NotificationType enumerates the events a user can be notified about.
type NotificationType string

const (
	NotificationCapsuleOpening NotificationType = "CapsuleOpening"
	NotificationFriendRequest  NotificationType = "FriendRequest"
	NotificationNewComment     NotificationType = "NewComment"
	NotificationNewReaction    NotificationType = "NewReaction"
)

// Notification is an in-app message for a user. Scheduled rows carry a future
// NotiTime and stay unsent until promoted.
type Notification struct {
	BaseModel

	UserID    string           `gorm:"size:36;not null;index;uniqueIndex:idx_notification_schedule" json:"user_id"`
	CapsuleID *string          `gorm:"size:36;index;uniqueIndex:idx_notification_schedule" json:"capsule_id,omitempty"`
	Capsule   *Capsule         `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE" json:"-"`
	Type      NotificationType `gorm:"size:32;not null;uniqueIndex:idx_notification_schedule" json:"type"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	NotiTime  time.Time        `gorm:"not null;index;uniqueIndex:idx_notification_schedule" json:"noti_time"`
	IsSent    bool             `gorm:"default:false;index" json:"is_sent"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
}
