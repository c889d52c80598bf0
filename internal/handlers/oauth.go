package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/services"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// IdentityProvider is an external sign-in provider using the authorization code flow.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(attempt providers.Attempt) string
	Exchange(ctx context.Context, code string, attempt providers.Attempt) (*providers.Identity, error)
}

// OAuthHandler serves the redirect and callback legs of external sign-in.
type OAuthHandler struct {
	provider IdentityProvider
	attempts *providers.AttemptStore
	auth     *services.AuthService
}

// NewOAuthHandler constructs an OAuthHandler. A nil provider disables the routes.
func NewOAuthHandler(provider IdentityProvider, attempts *providers.AttemptStore, auth *services.AuthService) *OAuthHandler {
	return &OAuthHandler{provider: provider, attempts: attempts, auth: auth}
}

// GET /api/auth/google
func (h *OAuthHandler) Begin(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, apperrors.NewNotFound("Sign-in provider is not configured"))
		return
	}

	attempt, err := providers.NewAttempt()
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	if err := h.attempts.Save(requestContext(c), attempt); err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(attempt))
}

// GET /api/auth/google/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, apperrors.NewNotFound("Sign-in provider is not configured"))
		return
	}

	ctx := requestContext(c)
	attempt, err := h.attempts.Consume(ctx, c.Query("state"))
	if err != nil {
		if errors.Is(err, providers.ErrUnknownAttempt) {
			response.Error(c, apperrors.NewBadRequest("Sign-in attempt is invalid or has expired"))
			return
		}
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	if reason := strings.TrimSpace(c.Query("error")); reason != "" {
		response.Error(c, apperrors.ErrUnauthorized.WithMessage("Sign-in was cancelled: "+reason))
		return
	}

	identity, err := h.provider.Exchange(ctx, c.Query("code"), attempt)
	if err != nil {
		logger.WithModule("oauth").Warn("identity exchange failed",
			zap.String("provider", h.provider.Name()),
			zap.Error(err),
		)
		response.Error(c, apperrors.ErrUnauthorized.WithMessage("Sign-in with "+h.provider.Name()+" failed"))
		return
	}

	result, err := h.auth.LoginWithIdentity(ctx, *identity, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
