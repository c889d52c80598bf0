package models

// FriendRequestStatus tracks a friend request through review.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

// FriendRequest is unique per (sender, receiver).
type FriendRequest struct {
	BaseModel

	SenderID   string              `gorm:"size:36;not null;uniqueIndex:idx_friend_request_pair" json:"sender_id"`
	Sender     *User               `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	ReceiverID string              `gorm:"size:36;not null;uniqueIndex:idx_friend_request_pair;index" json:"receiver_id"`
	Receiver   *User               `gorm:"foreignKey:ReceiverID;constraint:OnDelete:CASCADE" json:"receiver,omitempty"`
	Status     FriendRequestStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
}

// Friend is one direction of a friendship. Accepted requests store both directions.
type Friend struct {
	BaseModel

	UserID   string `gorm:"size:36;not null;uniqueIndex:idx_friend_pair" json:"user_id"`
	FriendID string `gorm:"size:36;not null;uniqueIndex:idx_friend_pair;index" json:"friend_id"`
	Friend   *User  `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE" json:"friend,omitempty"`
}
