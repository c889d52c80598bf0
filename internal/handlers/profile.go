package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/response"
)

const avatarField = "avatar"

// ProfileHandler serves the authenticated user's own profile and related collections.
type ProfileHandler struct {
	users          *services.UserService
	capsules       *services.CapsuleService
	friends        *services.FriendService
	notifications  *services.NotificationService
	maxUploadBytes int64
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(users *services.UserService, capsules *services.CapsuleService, friends *services.FriendService, notifications *services.NotificationService, maxUploadBytes int64) *ProfileHandler {
	return &ProfileHandler{
		users:          users,
		capsules:       capsules,
		friends:        friends,
		notifications:  notifications,
		maxUploadBytes: maxUploadBytes,
	}
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,notblank,max=128"`
	Email       *string `json:"email" validate:"omitempty,email"`
}

// GET /api/profile
func (h *ProfileHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.users.Me(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/profile/avatar
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if !isMultipart(c) {
		response.Error(c, errors.NewBadRequest("multipart form data is required"))
		return
	}

	form, err := parseMultipart(c, h.maxUploadBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	uploads, closeUploads, err := openUploads(form, avatarField)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeFiles(closeUploads)

	if len(uploads) != 1 {
		response.Error(c, errors.NewBadRequest("exactly one avatar file is required"))
		return
	}

	user, err := h.users.UploadAvatar(requestContext(c), userID, uploads[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/profile/capsules
func (h *ProfileHandler) Capsules(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	capsules, err := h.capsules.ListOwned(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, capsules)
}

// GET /api/profile/friends
func (h *ProfileHandler) Friends(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	friends, err := h.friends.ListFriends(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, friends)
}

// GET /api/profile/notifications
func (h *ProfileHandler) Notifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	items, err := h.notifications.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}
