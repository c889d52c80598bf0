package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/models"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

func googleIdentity(subject, email string) providers.Identity {
	return providers.Identity{
		Provider:      "google",
		Subject:       subject,
		Email:         email,
		EmailVerified: true,
		DisplayName:   "Grace Hopper",
		AvatarURL:     "https://lh3.example.com/grace.png",
	}
}

func TestLoginWithIdentityCreatesUserOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.LoginWithIdentity(ctx, googleIdentity("g-100", "Grace@Example.com"), iauth.SessionMetadata{IPAddress: "10.0.0.9"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Tokens.AccessToken)
	require.NotEmpty(t, first.Tokens.RefreshToken)
	require.Equal(t, "grace@example.com", first.User.Email)
	require.Equal(t, "Grace Hopper", first.User.DisplayName)
	require.Equal(t, "https://lh3.example.com/grace.png", first.User.AvatarURL)
	require.Equal(t, models.RoleUser, first.User.Role)
	require.NotNil(t, first.User.LastLoginAt)

	// Same subject with a changed email still resolves to the same account.
	renamed := googleIdentity("g-100", "grace.hopper@example.com")
	second, err := f.svc.LoginWithIdentity(ctx, renamed, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)

	var users, links int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, f.db.Model(&models.UserIdentity{}).Count(&links).Error)
	require.EqualValues(t, 1, users)
	require.EqualValues(t, 1, links)

	var link models.UserIdentity
	require.NoError(t, f.db.Take(&link, "provider = ? AND provider_user_id = ?", "google", "g-100").Error)
	require.Equal(t, first.User.ID, link.UserID)
	require.Equal(t, "grace.hopper@example.com", link.Email)

	// Accounts created through a provider have no usable password.
	_, err = f.svc.Login(ctx, "grace@example.com", "", iauth.SessionMetadata{})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginWithIdentityLinksVerifiedEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	existing, err := f.svc.Signup(ctx, SignupInput{Email: "ada@example.com", Password: strongPassword, DisplayName: "Ada"})
	require.NoError(t, err)

	unverified := googleIdentity("g-200", "ada@example.com")
	unverified.EmailVerified = false
	_, err = f.svc.LoginWithIdentity(ctx, unverified, iauth.SessionMetadata{})
	require.ErrorIs(t, err, ErrEmailTaken)

	result, err := f.svc.LoginWithIdentity(ctx, googleIdentity("g-200", "ada@example.com"), iauth.SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, existing.ID, result.User.ID)
	require.Equal(t, "Ada", result.User.DisplayName)
	require.Equal(t, "https://lh3.example.com/grace.png", result.User.AvatarURL)

	// The password keeps working after linking.
	_, err = f.svc.Login(ctx, "ada@example.com", strongPassword, iauth.SessionMetadata{})
	require.NoError(t, err)
}

func TestLoginWithIdentityRejections(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.LoginWithIdentity(ctx, providers.Identity{Provider: "google"}, iauth.SessionMetadata{})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.svc.LoginWithIdentity(ctx, googleIdentity("g-300", ""), iauth.SessionMetadata{})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	result, err := f.svc.LoginWithIdentity(ctx, googleIdentity("g-301", "linus@example.com"), iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", result.User.ID).Update("is_active", false).Error)

	_, err = f.svc.LoginWithIdentity(ctx, googleIdentity("g-301", "linus@example.com"), iauth.SessionMetadata{})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}
