package app

import (
	"strings"
	"time"

	"github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/services"
)

const defaultResetTokenTTL = time.Hour

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// AuthServiceConfig converts the password reset settings for the AuthService.
func (c AuthConfig) AuthServiceConfig() services.AuthConfig {
	ttl := c.PasswordReset.TTL
	if ttl <= 0 {
		ttl = defaultResetTokenTTL
	}
	return services.AuthConfig{
		ResetTokenTTL: ttl,
		ResetURL:      c.PasswordReset.URL,
	}
}

// GoogleEnabled reports whether Google sign-in is switched on and has client credentials.
func (c AuthConfig) GoogleEnabled() bool {
	return c.Google.Enabled && strings.TrimSpace(c.Google.ClientID) != ""
}

// GoogleProviderConfig converts the Google settings for the OIDC provider.
func (c AuthConfig) GoogleProviderConfig() providers.OIDCConfig {
	issuer := strings.TrimSpace(c.Google.Issuer)
	if issuer == "" {
		issuer = providers.GoogleIssuer
	}
	return providers.OIDCConfig{
		Name:         "google",
		Issuer:       issuer,
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.Google.RedirectURL),
	}
}
