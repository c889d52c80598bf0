package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	preset := BaseModel{ID: "fixed"}
	require.NoError(t, preset.BeforeCreate(nil))
	require.Equal(t, "fixed", preset.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel { return &(&User{}).BaseModel }},
		{"session", func() *BaseModel { return &(&Session{}).BaseModel }},
		{"password_reset_token", func() *BaseModel { return &(&PasswordResetToken{}).BaseModel }},
		{"user_identity", func() *BaseModel { return &(&UserIdentity{}).BaseModel }},
		{"capsule", func() *BaseModel { return &(&Capsule{}).BaseModel }},
		{"capsule_viewer", func() *BaseModel { return &(&CapsuleViewer{}).BaseModel }},
		{"recall_question", func() *BaseModel { return &(&RecallQuestion{}).BaseModel }},
		{"capsule_media", func() *BaseModel { return &(&CapsuleMedia{}).BaseModel }},
		{"notification", func() *BaseModel { return &(&Notification{}).BaseModel }},
		{"advertisement", func() *BaseModel { return &(&Advertisement{}).BaseModel }},
		{"friend_request", func() *BaseModel { return &(&FriendRequest{}).BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			require.NoError(t, base.BeforeCreate(nil))
			require.NotEmpty(t, base.ID)
		})
	}
}

func TestCapsuleOpenable(t *testing.T) {
	opening := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	capsule := Capsule{OpeningTime: opening}

	require.False(t, capsule.Openable(opening.Add(-time.Second)))
	require.True(t, capsule.Openable(opening))
	require.True(t, capsule.Openable(opening.Add(time.Hour)))
}

func TestCapsuleStatusValid(t *testing.T) {
	require.True(t, CapsuleLocked.Valid())
	require.True(t, CapsuleOpened.Valid())
	require.False(t, CapsuleStatus("Archived").Valid())
}

func TestSessionActive(t *testing.T) {
	now := time.Now()
	session := Session{ExpiresAt: now.Add(time.Hour)}
	require.True(t, session.Active(now))
	require.False(t, session.Active(now.Add(2*time.Hour)))

	session.RevokedAt = &now
	require.False(t, session.Active(now))
}

func TestUserIsAdmin(t *testing.T) {
	require.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	require.False(t, (&User{Role: RoleUser}).IsAdmin())
	var missing *User
	require.False(t, missing.IsAdmin())
}
