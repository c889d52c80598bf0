package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the OpenID Connect issuer behind "Sign in with Google".
const GoogleIssuer = "https://accounts.google.com"

const defaultOIDCTimeout = 10 * time.Second

// ErrNonceMismatch is returned when the ID token was minted for another sign-in attempt.
var ErrNonceMismatch = errors.New("oidc provider: nonce mismatch")

// Identity is the external account returned by a successful sign-in.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// OIDCConfig describes one OpenID Connect client registration.
type OIDCConfig struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCOptions configures discovery and token exchange.
type OIDCOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCProvider runs the authorization code flow with PKCE against an OIDC issuer.
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
	timeout     time.Duration
}

// NewOIDCProvider discovers the issuer endpoints and keys.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opts OIDCOptions) (*OIDCProvider, error) {
	cfg.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/")
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oidc provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("oidc provider: redirect url is required")
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = "google"
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultOIDCTimeout
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}
	discoverCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(discoverCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: discovery failed: %w", err)
	}

	return &OIDCProvider{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier:   issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
	}, nil
}

// Name identifies the provider in stored identities, e.g. "google".
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL returns the consent page URL for one sign-in attempt.
func (p *OIDCProvider) AuthCodeURL(attempt Attempt) string {
	return p.oauthConfig.AuthCodeURL(attempt.State,
		oauth2.SetAuthURLParam("nonce", attempt.Nonce),
		oauth2.S256ChallengeOption(attempt.Verifier),
	)
}

// Exchange trades the authorization code for tokens and verifies the ID token.
func (p *OIDCProvider) Exchange(ctx context.Context, code string, attempt Attempt) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oidc provider: authorization code missing")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(attempt.Verifier))
	if err != nil {
		return nil, fmt.Errorf("oidc provider: exchange failed: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc provider: id token missing")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: verify id token: %w", err)
	}
	if idToken.Nonce != attempt.Nonce {
		return nil, ErrNonceMismatch
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc provider: decode claims: %w", err)
	}

	return &Identity{
		Provider:      p.name,
		Subject:       idToken.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: boolClaim(claims.EmailVerified),
		DisplayName:   strings.TrimSpace(claims.Name),
		AvatarURL:     strings.TrimSpace(claims.Picture),
	}, nil
}

// Google sometimes encodes email_verified as a string.
func boolClaim(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
