package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/handlers"
)

type authRouteDeps struct {
	Handler      *handlers.AuthHandler
	OAuth        *handlers.OAuthHandler
	CredentialRL gin.HandlerFunc
}

func registerAuthRoutes(api, protected *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/signup", deps.CredentialRL, deps.Handler.Signup)
		auth.POST("/login", deps.CredentialRL, deps.Handler.Login)
		auth.POST("/refresh", deps.Handler.Refresh)
		auth.POST("/password/forgot", deps.CredentialRL, deps.Handler.ForgotPassword)
		auth.POST("/password/reset", deps.CredentialRL, deps.Handler.ResetPassword)
		auth.POST("/password/strength", deps.Handler.PasswordStrength)
		auth.GET("/google", deps.CredentialRL, deps.OAuth.Begin)
		auth.GET("/google/callback", deps.CredentialRL, deps.OAuth.Callback)
	}

	protected.POST("/auth/logout", deps.Handler.Logout)
}
