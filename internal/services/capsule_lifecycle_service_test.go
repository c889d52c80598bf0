package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/storage"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

func TestRequestOpenHonoursOpeningTime(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	other := createUser(t, f.db, "other@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{Content: "x", OpeningTime: testEpoch.Add(time.Hour)}, nil)
	require.NoError(t, err)

	_, err = f.lifecycle.RequestOpen(context.Background(), capsule.ID, other.ID)
	require.ErrorIs(t, err, apperrors.ErrCapsuleNotOpenable)

	var stored models.Capsule
	require.NoError(t, f.db.Take(&stored, "id = ?", capsule.ID).Error)
	require.Equal(t, models.CapsuleLocked, stored.Status)

	f.clock.Advance(time.Hour)
	opened, err := f.lifecycle.RequestOpen(context.Background(), capsule.ID, other.ID)
	require.NoError(t, err)
	require.Equal(t, models.CapsuleOpened, opened.Status)

	_, err = f.lifecycle.RequestOpen(context.Background(), capsule.ID, other.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.RequestOpen(context.Background(), "missing", other.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := f.capsules.GetOpened(context.Background(), capsule.ID, other.ID)
	require.NoError(t, err)
	require.Equal(t, capsule.ID, got.ID)
	_, err = f.capsules.GetLocked(context.Background(), capsule.ID, other.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAbortIsIdempotent(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{Content: "x", OpeningTime: testEpoch.Add(time.Minute)}, nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.lifecycle.RequestOpen(context.Background(), capsule.ID, owner.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		aborted, err := f.lifecycle.Abort(context.Background(), capsule.ID)
		require.NoError(t, err)
		require.Equal(t, models.CapsuleLocked, aborted.Status)
	}

	_, err = f.lifecycle.Abort(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.Equal(t, []string{events.CapsuleCreated, events.CapsuleOpened, events.CapsuleAborted, events.CapsuleAborted}, f.events.Types())
}

func TestDeleteRequiresOwnerAndCascades(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	viewer := createUser(t, f.db, "viewer@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:              "x",
		Privacy:              models.PrivacyPrivate,
		ViewerIDs:            []string{viewer.ID},
		NotificationInterval: 2,
		OpeningTime:          testEpoch.Add(72 * time.Hour),
		Questions:            []QuestionInput{validQuestion()},
	}, []storage.Upload{{Filename: "a.txt", Body: strings.NewReader("a")}})
	require.NoError(t, err)
	_, err = f.capsules.AddComment(context.Background(), capsule.ID, viewer.ID, "hi")
	require.NoError(t, err)

	err = f.lifecycle.Delete(context.Background(), capsule.ID, viewer.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.lifecycle.Delete(context.Background(), capsule.ID, owner.ID))
	require.Zero(t, f.storage.Len())

	for _, model := range []any{&models.Capsule{}, &models.CapsuleViewer{}, &models.RecallQuestion{}, &models.CapsuleMedia{}, &models.CapsuleComment{}, &models.Notification{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		require.Zero(t, count, "%T rows left behind", model)
	}

	err = f.lifecycle.Delete(context.Background(), capsule.ID, owner.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
