package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/database/testutil"
	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/storage"
	itestutil "github.com/charlesng35/timecapsule/internal/testutil"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

type capsuleFixture struct {
	db        *gorm.DB
	clock     *itestutil.Clock
	storage   *memoryStorage
	notifier  *recordingNotifier
	events    *events.Recorder
	capsules  *CapsuleService
	lifecycle *CapsuleLifecycleService
}

func newCapsuleFixture(t *testing.T) *capsuleFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	objects := newMemoryStorage()
	notifier := &recordingNotifier{}
	recorder := &events.Recorder{}

	notifications, err := NewNotificationService(db, notifier, WithClock(clock.Now))
	require.NoError(t, err)
	capsules, err := NewCapsuleService(db, objects, notifications, WithClock(clock.Now), WithEventPublisher(recorder))
	require.NoError(t, err)
	lifecycle, err := NewCapsuleLifecycleService(db, objects, WithClock(clock.Now), WithEventPublisher(recorder))
	require.NoError(t, err)

	return &capsuleFixture{
		db:        db,
		clock:     clock,
		storage:   objects,
		notifier:  notifier,
		events:    recorder,
		capsules:  capsules,
		lifecycle: lifecycle,
	}
}

func validQuestion() QuestionInput {
	return QuestionInput{
		Question:      "Where did we meet?",
		ChoiceA:       "Paris",
		ChoiceB:       "Rome",
		ChoiceC:       "Oslo",
		ChoiceD:       "Lima",
		CorrectAnswer: "b",
		Explanation:   "It rained in Rome.",
	}
}

func TestCreateCapsuleStoresEverything(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	viewer := createUser(t, f.db, "viewer@example.com")

	opening := testEpoch.Add(5 * 24 * time.Hour)
	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:              "dear future me",
		Privacy:              models.PrivacyPrivate,
		NotificationInterval: 3,
		OpeningTime:          opening,
		ViewerIDs:            []string{viewer.ID, viewer.ID},
		Questions:            []QuestionInput{validQuestion()},
	}, []storage.Upload{{Filename: "photo.png", ContentType: "application/octet-stream", Body: bytes.NewReader(itestutil.PNG())}})
	require.NoError(t, err)

	require.Equal(t, models.CapsuleLocked, capsule.Status)
	require.Len(t, capsule.Viewers, 2)
	require.Len(t, capsule.Questions, 1)
	require.Equal(t, "B", capsule.Questions[0].CorrectAnswer)
	require.Len(t, capsule.Media, 1)
	require.Equal(t, "image/png", capsule.Media[0].MediaType)
	require.Equal(t, 1, f.storage.Len())

	var reminders int64
	require.NoError(t, f.db.Model(&models.Notification{}).Where("capsule_id = ?", capsule.ID).Count(&reminders).Error)
	require.EqualValues(t, 3, reminders)
	require.Equal(t, []string{events.CapsuleCreated}, f.events.Types())
}

func TestCreateCapsuleValidation(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	future := testEpoch.Add(time.Hour)

	cases := map[string]CreateCapsuleInput{
		"missing content":   {OpeningTime: future},
		"past opening":      {Content: "x", OpeningTime: testEpoch.Add(-time.Minute)},
		"bad privacy":       {Content: "x", OpeningTime: future, Privacy: "friends"},
		"interval too big":  {Content: "x", OpeningTime: future, NotificationInterval: 31},
		"private no viewer": {Content: "x", OpeningTime: future, Privacy: models.PrivacyPrivate},
		"unknown viewer":    {Content: "x", OpeningTime: future, Privacy: models.PrivacyPrivate, ViewerIDs: []string{"missing"}},
		"too many questions": {Content: "x", OpeningTime: future, Questions: []QuestionInput{
			validQuestion(), validQuestion(), validQuestion(), validQuestion(), validQuestion(),
		}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.capsules.Create(context.Background(), owner.ID, input, nil)
			require.ErrorIs(t, err, apperrors.ErrBadRequest)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Capsule{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateCapsuleRemovesUploadsOnFailure(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")

	require.NoError(t, f.db.Migrator().DropTable(&models.RecallQuestion{}))

	_, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:     "x",
		OpeningTime: testEpoch.Add(time.Hour),
		Questions:   []QuestionInput{validQuestion()},
	}, []storage.Upload{{Filename: "a.txt", Body: strings.NewReader("a")}})
	require.Error(t, err)
	require.Zero(t, f.storage.Len())

	var count int64
	require.NoError(t, f.db.Model(&models.Capsule{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPrivateCapsuleAccess(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	viewer := createUser(t, f.db, "viewer@example.com")
	stranger := createUser(t, f.db, "stranger@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:     "secret",
		Description: "for close friends",
		Privacy:     models.PrivacyPrivate,
		OpeningTime: testEpoch.Add(time.Hour),
		ViewerIDs:   []string{viewer.ID},
	}, []storage.Upload{{Filename: "a.txt", Body: strings.NewReader("a")}})
	require.NoError(t, err)

	got, err := f.capsules.Get(context.Background(), capsule.ID, viewer.ID)
	require.NoError(t, err)
	require.Equal(t, "secret", got.Content)

	_, err = f.capsules.Get(context.Background(), capsule.ID, stranger.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	desc, err := f.capsules.Description(context.Background(), capsule.ID, viewer.ID)
	require.NoError(t, err)
	require.Equal(t, "for close friends", desc)

	_, err = f.capsules.Media(context.Background(), capsule.ID, viewer.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	media, err := f.capsules.Media(context.Background(), capsule.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, media, 1)

	viewers, err := f.capsules.Viewers(context.Background(), capsule.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, viewers, 2)

	visible, err := f.capsules.ListVisible(context.Background(), stranger.ID)
	require.NoError(t, err)
	require.Empty(t, visible)

	visible, err = f.capsules.ListVisible(context.Background(), viewer.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	_, err = f.capsules.Get(context.Background(), "missing", owner.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestQuestionsAnswersAndExplanation(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	other := createUser(t, f.db, "other@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:     "quiz",
		OpeningTime: testEpoch.Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	_, err = f.capsules.Questions(context.Background(), capsule.ID, other.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.capsules.AddQuestion(context.Background(), capsule.ID, other.ID, validQuestion())
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	question, err := f.capsules.AddQuestion(context.Background(), capsule.ID, owner.ID, validQuestion())
	require.NoError(t, err)

	questions, err := f.capsules.Questions(context.Background(), capsule.ID, other.ID)
	require.NoError(t, err)
	require.Len(t, questions, 1)

	result, err := f.capsules.SubmitAnswer(context.Background(), capsule.ID, question.ID, other.ID, "b")
	require.NoError(t, err)
	require.True(t, result.Correct)

	result, err = f.capsules.SubmitAnswer(context.Background(), capsule.ID, question.ID, other.ID, "A")
	require.NoError(t, err)
	require.False(t, result.Correct)

	_, err = f.capsules.SubmitAnswer(context.Background(), capsule.ID, question.ID, other.ID, "E")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	explanation, err := f.capsules.Explanation(context.Background(), capsule.ID, question.ID, other.ID)
	require.NoError(t, err)
	require.Equal(t, "It rained in Rome.", explanation)

	for i := 0; i < MaxRecallQuestions-1; i++ {
		_, err := f.capsules.AddQuestion(context.Background(), capsule.ID, owner.ID, validQuestion())
		require.NoError(t, err)
	}
	_, err = f.capsules.AddQuestion(context.Background(), capsule.ID, owner.ID, validQuestion())
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCommentsAndReactionsNotifyOwner(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	fan := createUser(t, f.db, "fan@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{
		Content:     "public",
		OpeningTime: testEpoch.Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	comment, err := f.capsules.AddComment(context.Background(), capsule.ID, fan.ID, " nice ")
	require.NoError(t, err)
	require.Equal(t, "nice", comment.Content)
	require.Equal(t, "fan@example.com", comment.Email)
	require.Equal(t, "fan", comment.DisplayName)

	_, err = f.capsules.AddComment(context.Background(), capsule.ID, owner.ID, "thanks")
	require.NoError(t, err)

	comments, err := f.capsules.Comments(context.Background(), capsule.ID, fan.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	_, err = f.capsules.React(context.Background(), capsule.ID, fan.ID, "like")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	reaction, err := f.capsules.React(context.Background(), capsule.ID, fan.ID, "love")
	require.NoError(t, err)
	require.Equal(t, "love", reaction.ReactionType)

	reactions, err := f.capsules.Reactions(context.Background(), capsule.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	require.Equal(t, "love", reactions[0].ReactionType)

	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", owner.ID).Order("created_at ASC").Find(&notes).Error)
	kinds := make([]models.NotificationType, 0, len(notes))
	for _, n := range notes {
		if n.Type != models.NotificationCapsuleOpening {
			kinds = append(kinds, n.Type)
		}
	}
	require.ElementsMatch(t, []models.NotificationType{
		models.NotificationNewComment,
		models.NotificationNewReaction,
		models.NotificationNewReaction,
	}, kinds)
	require.Len(t, f.notifier.For(owner.ID), 3)
}

func TestListOpenableAndOwned(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	other := createUser(t, f.db, "other@example.com")

	soon, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{Content: "soon", OpeningTime: testEpoch.Add(time.Hour)}, nil)
	require.NoError(t, err)
	_, err = f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{Content: "later", OpeningTime: testEpoch.Add(48 * time.Hour)}, nil)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	openable, err := f.capsules.ListOpenable(context.Background(), other.ID)
	require.NoError(t, err)
	require.Len(t, openable, 1)
	require.Equal(t, soon.ID, openable[0].ID)

	owned, err := f.capsules.ListOwned(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	owned, err = f.capsules.ListOwned(context.Background(), other.ID)
	require.NoError(t, err)
	require.Empty(t, owned)
}

func TestAddMediaAndSetImage(t *testing.T) {
	f := newCapsuleFixture(t)
	owner := createUser(t, f.db, "owner@example.com")
	other := createUser(t, f.db, "other@example.com")

	capsule, err := f.capsules.Create(context.Background(), owner.ID, CreateCapsuleInput{Content: "x", OpeningTime: testEpoch.Add(time.Hour)}, nil)
	require.NoError(t, err)

	_, err = f.capsules.AddMedia(context.Background(), capsule.ID, other.ID, []storage.Upload{{Filename: "a", Body: strings.NewReader("a")}})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	media, err := f.capsules.AddMedia(context.Background(), capsule.ID, owner.ID, []storage.Upload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Body: strings.NewReader("a")},
		{Filename: "b.mp4", ContentType: "video/mp4", Body: strings.NewReader("b")},
	})
	require.NoError(t, err)
	require.Len(t, media, 2)

	updated, err := f.capsules.SetImage(context.Background(), capsule.ID, owner.ID, storage.Upload{Filename: "cover.png", ContentType: "image/png", Body: strings.NewReader("c")})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(updated.ImageURL, "https://cdn.test/capsules/"))
	require.Equal(t, 3, f.storage.Len())
}
