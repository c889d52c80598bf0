package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/handlers/testutil"
)

type fakeIdentityProvider struct {
	identity  providers.Identity
	exchanged []providers.Attempt
}

func (p *fakeIdentityProvider) Name() string { return "google" }

func (p *fakeIdentityProvider) AuthCodeURL(attempt providers.Attempt) string {
	return "https://accounts.test/o/auth?state=" + url.QueryEscape(attempt.State)
}

func (p *fakeIdentityProvider) Exchange(_ context.Context, code string, attempt providers.Attempt) (*providers.Identity, error) {
	p.exchanged = append(p.exchanged, attempt)
	if code != "valid-code" {
		return nil, errors.New("invalid_grant")
	}
	identity := p.identity
	return &identity, nil
}

func beginGoogleSignIn(t *testing.T, env *testutil.Env) string {
	t.Helper()

	rec := env.Request(http.MethodGet, "/api/auth/google", "", nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.test", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthHandlerGoogleSignIn(t *testing.T) {
	provider := &fakeIdentityProvider{identity: providers.Identity{
		Provider:      "google",
		Subject:       "google-sub-1",
		Email:         "grace@example.com",
		EmailVerified: true,
		DisplayName:   "Grace",
	}}
	env := testutil.NewEnv(t, testutil.WithIdentityProvider(provider))

	rec := env.Request(http.MethodGet, "/api/auth/google/callback?state=forged&code=valid-code", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, provider.exchanged)

	state := beginGoogleSignIn(t, env)
	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&code=valid-code", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login testutil.LoginResult
	testutil.Decode(t, rec, &login)
	require.Equal(t, "grace@example.com", login.User.Email)
	require.Equal(t, "Grace", login.User.DisplayName)
	require.NotEmpty(t, login.Tokens.RefreshToken)

	require.Len(t, provider.exchanged, 1)
	require.Equal(t, state, provider.exchanged[0].State)
	require.NotEmpty(t, provider.exchanged[0].Nonce)
	require.NotEmpty(t, provider.exchanged[0].Verifier)

	me := env.Request(http.MethodGet, "/api/profile", login.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())

	// A state value is accepted once.
	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&code=valid-code", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Signing in again reuses the linked account.
	state = beginGoogleSignIn(t, env)
	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&code=valid-code", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again testutil.LoginResult
	testutil.Decode(t, rec, &again)
	require.Equal(t, login.User.ID, again.User.ID)
}

func TestOAuthHandlerGoogleFailures(t *testing.T) {
	provider := &fakeIdentityProvider{identity: providers.Identity{Provider: "google", Subject: "s", Email: "x@example.com"}}
	env := testutil.NewEnv(t, testutil.WithIdentityProvider(provider))

	state := beginGoogleSignIn(t, env)
	rec := env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&error=access_denied", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, provider.exchanged)

	state = beginGoogleSignIn(t, env)
	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&code=stale-code", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope := testutil.Decode(t, rec, nil)
	require.False(t, envelope.Success)
	require.Equal(t, "Sign-in with google failed", envelope.Error.Message)

	// An unverified email that belongs to a password account is not linked.
	env.Signup("x@example.com", testutil.DefaultPassword)
	state = beginGoogleSignIn(t, env)
	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state)+"&code=valid-code", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestOAuthHandlerWithoutProvider(t *testing.T) {
	env := testutil.NewEnv(t)

	rec := env.Request(http.MethodGet, "/api/auth/google", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Request(http.MethodGet, "/api/auth/google/callback?state=x&code=y", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
