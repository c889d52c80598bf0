package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/timecapsule/internal/models"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

// FriendService manages friend requests and the resulting friendships.
type FriendService struct {
	db            *gorm.DB
	notifications *NotificationService
	log           *zap.Logger
}

// NewFriendService constructs a FriendService. notifications may be nil.
func NewFriendService(db *gorm.DB, notifications *NotificationService) (*FriendService, error) {
	if db == nil {
		return nil, errors.New("friend service: db is required")
	}
	return &FriendService{db: db, notifications: notifications, log: serviceLogger("friends")}, nil
}

// SendRequest asks receiverID to become friends with senderID.
func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	ctx = ensureContext(ctx)
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)

	if receiverID == "" {
		return nil, apperrors.NewBadRequest("receiver is required")
	}
	if senderID == receiverID {
		return nil, apperrors.NewBadRequest("You cannot send a friend request to yourself")
	}

	var sender, receiver models.User
	if err := s.db.WithContext(ctx).Take(&sender, "id = ?", senderID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("friend service: load sender: %w", err)
	}
	if err := s.db.WithContext(ctx).Take(&receiver, "id = ?", receiverID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFound("User not found")
		}
		return nil, fmt.Errorf("friend service: load receiver: %w", err)
	}

	var friends int64
	if err := s.db.WithContext(ctx).Model(&models.Friend{}).
		Where("user_id = ? AND friend_id = ?", senderID, receiverID).
		Count(&friends).Error; err != nil {
		return nil, fmt.Errorf("friend service: check friendship: %w", err)
	}
	if friends > 0 {
		return nil, apperrors.NewConflict("You are already friends")
	}

	var existing []models.FriendRequest
	if err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", senderID, receiverID, receiverID, senderID).
		Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("friend service: check requests: %w", err)
	}

	var request *models.FriendRequest
	for i := range existing {
		req := existing[i]
		if req.Status == models.FriendRequestPending {
			return nil, apperrors.NewConflict("A friend request is already pending")
		}
		if req.SenderID == senderID && req.Status == models.FriendRequestRejected {
			request = &req
		}
	}

	if request != nil {
		if err := s.db.WithContext(ctx).Model(request).Update("status", models.FriendRequestPending).Error; err != nil {
			return nil, fmt.Errorf("friend service: resend request: %w", err)
		}
		request.Status = models.FriendRequestPending
	} else {
		request = &models.FriendRequest{SenderID: senderID, ReceiverID: receiverID, Status: models.FriendRequestPending}
		if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
			return nil, conflictOnDuplicate(err, apperrors.NewConflict("A friend request already exists"), "friend service: create request")
		}
	}

	request.Sender = &sender
	s.notify(ctx, receiverID, fmt.Sprintf("%s sent you a friend request", actorName(&sender)))
	return request, nil
}

// PendingRequests lists requests waiting on userID, with sender details.
func (s *FriendService) PendingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	if err := s.db.WithContext(ensureContext(ctx)).
		Preload("Sender").
		Where("receiver_id = ? AND status = ?", userID, models.FriendRequestPending).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("friend service: list pending requests: %w", err)
	}
	return requests, nil
}

// Accept marks a pending request accepted and links both users as friends.
func (s *FriendService) Accept(ctx context.Context, requestID, userID string) (*models.FriendRequest, error) {
	ctx = ensureContext(ctx)

	request, err := s.pendingForReceiver(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", request.ID, models.FriendRequestPending).
			Update("status", models.FriendRequestAccepted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errRequestNotPending
		}

		edges := []models.Friend{
			{UserID: request.SenderID, FriendID: request.ReceiverID},
			{UserID: request.ReceiverID, FriendID: request.SenderID},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("friend service: accept request: %w", err)
	}
	request.Status = models.FriendRequestAccepted

	s.notify(ctx, request.SenderID, fmt.Sprintf("%s accepted your friend request", actorName(request.Receiver)))
	return request, nil
}

// Reject marks a pending request rejected.
func (s *FriendService) Reject(ctx context.Context, requestID, userID string) (*models.FriendRequest, error) {
	ctx = ensureContext(ctx)

	request, err := s.pendingForReceiver(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", request.ID, models.FriendRequestPending).
		Update("status", models.FriendRequestRejected)
	if result.Error != nil {
		return nil, fmt.Errorf("friend service: reject request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errRequestNotPending
	}
	request.Status = models.FriendRequestRejected
	return request, nil
}

// ListFriends returns the users userID is friends with.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]models.User, error) {
	var edges []models.Friend
	if err := s.db.WithContext(ensureContext(ctx)).
		Preload("Friend").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("friend service: list friends: %w", err)
	}

	users := make([]models.User, 0, len(edges))
	for _, edge := range edges {
		if edge.Friend != nil {
			users = append(users, *edge.Friend)
		}
	}
	return users, nil
}

func (s *FriendService) pendingForReceiver(ctx context.Context, requestID, userID string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	if err := s.db.WithContext(ctx).Preload("Receiver").Take(&request, "id = ?", requestID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFound("Friend request not found")
		}
		return nil, fmt.Errorf("friend service: load request: %w", err)
	}
	if request.ReceiverID != userID {
		return nil, apperrors.ErrForbidden.WithMessage("Only the receiver can respond to this request")
	}
	if request.Status != models.FriendRequestPending {
		return nil, errRequestNotPending
	}
	return &request, nil
}

func (s *FriendService) notify(ctx context.Context, userID, message string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.CreateImmediate(ctx, userID, models.NotificationFriendRequest, message, nil); err != nil {
		s.log.Warn("notify friend request", zap.String("user_id", userID), zap.Error(err))
	}
}
