package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// FriendHandler exposes friend requests and the friend list.
type FriendHandler struct {
	friends *services.FriendService
}

// NewFriendHandler constructs a FriendHandler.
func NewFriendHandler(friends *services.FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

type friendRequestPayload struct {
	ReceiverID string `json:"receiver_id" validate:"required,notblank"`
}

// POST /api/friends/requests
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req friendRequestPayload
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.friends.SendRequest(requestContext(c), userID, req.ReceiverID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

// GET /api/friends/requests
func (h *FriendHandler) Pending(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.friends.PendingRequests(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

// POST /api/friends/requests/:id/accept
func (h *FriendHandler) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	request, err := h.friends.Accept(requestContext(c), requestID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// POST /api/friends/requests/:id/reject
func (h *FriendHandler) Reject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	request, err := h.friends.Reject(requestContext(c), requestID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// GET /api/friends
func (h *FriendHandler) List(c *gin.Context) {
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
