package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/middleware"
	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// AuthHandler manages authentication flows (signup/login/refresh/logout/password reset).
type AuthHandler struct {
	auth *services.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type signupRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type passwordStrengthRequest struct {
	Password string `json:"password"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.auth.Signup(requestContext(c), services.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), req.Email, req.Password, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tokens, err := h.auth.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokens)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.auth.Logout(requestContext(c), sessionID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// POST /api/auth/password/forgot
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	// Same answer whether or not the address is registered.
	response.Success(c, http.StatusAccepted, gin.H{"requested": true})
}

// POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(requestContext(c), strings.TrimSpace(req.Token), req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// POST /api/auth/password/strength
func (h *AuthHandler) PasswordStrength(c *gin.Context) {
	var req passwordStrengthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	strength := iauth.EvaluatePassword(req.Password)
	response.Success(c, http.StatusOK, gin.H{
		"strength":   strength,
		"acceptable": strength.Acceptable(),
	})
}
