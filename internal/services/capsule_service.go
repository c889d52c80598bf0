package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/storage"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

const (
	// MaxRecallQuestions caps the quiz attached to one capsule.
	MaxRecallQuestions = 4

	capsuleMediaPrefix = "capsules"
	maxReactionLength  = 32
)

// QuestionInput describes one multiple choice recall question.
type QuestionInput struct {
	Question      string `json:"question" validate:"required,notblank"`
	ChoiceA       string `json:"choice_a" validate:"required,notblank"`
	ChoiceB       string `json:"choice_b" validate:"required,notblank"`
	ChoiceC       string `json:"choice_c" validate:"required,notblank"`
	ChoiceD       string `json:"choice_d" validate:"required,notblank"`
	CorrectAnswer string `json:"correct_answer" validate:"required,answer_choice"`
	Explanation   string `json:"explanation"`
}

// CreateCapsuleInput holds the attributes of a new capsule.
type CreateCapsuleInput struct {
	Content              string
	Theme                string
	Description          string
	Privacy              models.CapsulePrivacy
	NotificationInterval int
	OpeningTime          time.Time
	ViewerIDs            []string
	Questions            []QuestionInput
}

// AnswerResult reports whether a submitted answer was correct.
type AnswerResult struct {
	Correct bool `json:"correct"`
}

// CommentView is a comment together with its author's public details.
type CommentView struct {
	ID          string    `json:"id"`
	CapsuleID   string    `json:"capsule_id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// CapsuleService creates capsules and serves their content and children.
type CapsuleService struct {
	db            *gorm.DB
	storage       storage.ObjectStorage
	notifications *NotificationService
	opts          options
	log           *zap.Logger
}

// NewCapsuleService constructs a CapsuleService.
func NewCapsuleService(db *gorm.DB, objects storage.ObjectStorage, notifications *NotificationService, opts ...Option) (*CapsuleService, error) {
	if db == nil {
		return nil, errors.New("capsule service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("capsule service: notification service is required")
	}
	return &CapsuleService{
		db:            db,
		storage:       objects,
		notifications: notifications,
		opts:          buildOptions(opts),
		log:           serviceLogger("capsules"),
	}, nil
}

// Create stores a locked capsule with its viewers, questions, media and
// reminders. Uploads are written first and removed again if the transaction fails.
func (s *CapsuleService) Create(ctx context.Context, ownerID string, input CreateCapsuleInput, uploads []storage.Upload) (*models.Capsule, error) {
	ctx = ensureContext(ctx)

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	capsule, viewerIDs, questions, err := s.prepareCapsule(ctx, ownerID, input)
	if err != nil {
		return nil, err
	}

	stored, err := storage.Store(ctx, s.storage, capsuleMediaPrefix, uploads, s.opts.now)
	if err != nil {
		return nil, fmt.Errorf("capsule service: upload media: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(capsule).Error; err != nil {
			return fmt.Errorf("create capsule: %w", err)
		}

		if len(viewerIDs) > 0 {
			viewers := make([]models.CapsuleViewer, 0, len(viewerIDs))
			for _, id := range viewerIDs {
				viewers = append(viewers, models.CapsuleViewer{CapsuleID: capsule.ID, UserID: id})
			}
			if err := tx.Create(&viewers).Error; err != nil {
				return fmt.Errorf("create viewers: %w", err)
			}
			capsule.Viewers = viewers
		}

		if len(questions) > 0 {
			for i := range questions {
				questions[i].CapsuleID = capsule.ID
			}
			if err := tx.Create(&questions).Error; err != nil {
				return fmt.Errorf("create questions: %w", err)
			}
			capsule.Questions = questions
		}

		if len(stored) > 0 {
			media := mediaRows(capsule.ID, ownerID, stored)
			if err := tx.Create(&media).Error; err != nil {
				return fmt.Errorf("create media: %w", err)
			}
			capsule.Media = media
		}

		if _, err := s.notifications.WithTx(tx).CreateScheduledForCapsule(ctx, capsule.ID, ownerID, capsule.OpeningTime, capsule.NotificationInterval); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if removeErr := storage.Remove(context.WithoutCancel(ctx), s.storage, stored); removeErr != nil {
			s.log.Warn("remove uploaded media after failed create", zap.Error(removeErr))
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("capsule service: %w", err)
	}

	metrics.CapsulesCreated.WithLabelValues(string(capsule.Privacy)).Inc()
	s.opts.publish(ctx, s.log, events.Event{
		Type:      events.CapsuleCreated,
		CapsuleID: capsule.ID,
		UserID:    ownerID,
		Data: map[string]any{
			"privacy":      capsule.Privacy,
			"opening_time": capsule.OpeningTime,
		},
	})
	return capsule, nil
}

func (s *CapsuleService) prepareCapsule(ctx context.Context, ownerID string, input CreateCapsuleInput) (*models.Capsule, []string, []models.RecallQuestion, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, nil, nil, apperrors.NewBadRequest("content is required")
	}
	if input.OpeningTime.IsZero() {
		return nil, nil, nil, errOpeningTimeRequired
	}
	openingTime := input.OpeningTime.UTC()
	if !openingTime.After(s.opts.now()) {
		return nil, nil, nil, apperrors.NewBadRequest("opening time must be in the future")
	}

	privacy := models.CapsulePrivacy(strings.ToLower(strings.TrimSpace(string(input.Privacy))))
	if privacy == "" {
		privacy = models.PrivacyPublic
	}
	if privacy != models.PrivacyPublic && privacy != models.PrivacyPrivate {
		return nil, nil, nil, apperrors.NewBadRequest("privacy must be public or private")
	}

	interval := input.NotificationInterval
	if interval == 0 {
		interval = 1
	}
	if interval < 1 || interval > MaxNotificationInterval {
		return nil, nil, nil, errNotificationInterval
	}

	if len(input.Questions) > MaxRecallQuestions {
		return nil, nil, nil, apperrors.NewBadRequest(fmt.Sprintf("a capsule can have at most %d questions", MaxRecallQuestions))
	}
	questions := make([]models.RecallQuestion, 0, len(input.Questions))
	for _, q := range input.Questions {
		question, err := buildQuestion(q)
		if err != nil {
			return nil, nil, nil, err
		}
		questions = append(questions, question)
	}

	var viewerIDs []string
	if privacy == models.PrivacyPrivate {
		viewerIDs = normaliseIDs(input.ViewerIDs)
		if len(viewerIDs) == 0 {
			return nil, nil, nil, errPrivateWithoutViewer
		}
		if err := s.ensureUsersExist(ctx, viewerIDs); err != nil {
			return nil, nil, nil, err
		}
		if !containsString(viewerIDs, ownerID) {
			viewerIDs = append(viewerIDs, ownerID)
		}
	}

	capsule := &models.Capsule{
		OwnerID:              ownerID,
		Content:              content,
		Theme:                strings.TrimSpace(input.Theme),
		Description:          strings.TrimSpace(input.Description),
		Privacy:              privacy,
		NotificationInterval: interval,
		OpeningTime:          openingTime,
		Status:               models.CapsuleLocked,
	}
	return capsule, viewerIDs, questions, nil
}

func (s *CapsuleService) ensureUsersExist(ctx context.Context, ids []string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return fmt.Errorf("capsule service: check viewers: %w", err)
	}
	if int(count) != len(ids) {
		return apperrors.NewBadRequest("one or more viewers do not exist")
	}
	return nil
}

func buildQuestion(input QuestionInput) (models.RecallQuestion, error) {
	answer := strings.ToUpper(strings.TrimSpace(input.CorrectAnswer))
	if !validChoice(answer) {
		return models.RecallQuestion{}, apperrors.NewBadRequest("correct answer must be one of A, B, C or D")
	}
	question := models.RecallQuestion{
		Question:      strings.TrimSpace(input.Question),
		ChoiceA:       strings.TrimSpace(input.ChoiceA),
		ChoiceB:       strings.TrimSpace(input.ChoiceB),
		ChoiceC:       strings.TrimSpace(input.ChoiceC),
		ChoiceD:       strings.TrimSpace(input.ChoiceD),
		CorrectAnswer: answer,
		Explanation:   strings.TrimSpace(input.Explanation),
	}
	if question.Question == "" || question.ChoiceA == "" || question.ChoiceB == "" || question.ChoiceC == "" || question.ChoiceD == "" {
		return models.RecallQuestion{}, apperrors.NewBadRequest("question and all four choices are required")
	}
	return question, nil
}

func validChoice(answer string) bool {
	switch answer {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

func mediaRows(capsuleID, uploaderID string, stored []storage.StoredObject) []models.CapsuleMedia {
	rows := make([]models.CapsuleMedia, 0, len(stored))
	for _, obj := range stored {
		metadata, _ := json.Marshal(map[string]any{
			"filename": obj.Filename,
			"size":     obj.Size,
		})
		rows = append(rows, models.CapsuleMedia{
			CapsuleID:  capsuleID,
			URL:        obj.URL,
			StorageKey: obj.Key,
			MediaType:  obj.ContentType,
			UploadedBy: uploaderID,
			Metadata:   datatypes.JSON(metadata),
		})
	}
	return rows
}

// Get returns the capsule with its children if userID may view it.
func (s *CapsuleService) Get(ctx context.Context, capsuleID, userID string) (*models.Capsule, error) {
	ctx = ensureContext(ctx)

	var capsule models.Capsule
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Viewers").
		Preload("Questions").
		Preload("Media").
		Preload("Reactions").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Take(&capsule, "id = ?", capsuleID).Error
	if err != nil {
		if isNotFound(err) {
			return nil, errCapsuleNotFound
		}
		return nil, fmt.Errorf("capsule service: load capsule: %w", err)
	}
	if err := requireViewer(ctx, s.db, &capsule, userID); err != nil {
		return nil, err
	}
	return &capsule, nil
}

// GetOpened returns the capsule only when it has been opened.
func (s *CapsuleService) GetOpened(ctx context.Context, capsuleID, userID string) (*models.Capsule, error) {
	return s.getWithStatus(ctx, capsuleID, userID, models.CapsuleOpened)
}

// GetLocked returns the capsule only while it is still locked.
func (s *CapsuleService) GetLocked(ctx context.Context, capsuleID, userID string) (*models.Capsule, error) {
	return s.getWithStatus(ctx, capsuleID, userID, models.CapsuleLocked)
}

func (s *CapsuleService) getWithStatus(ctx context.Context, capsuleID, userID string, status models.CapsuleStatus) (*models.Capsule, error) {
	capsule, err := s.Get(ctx, capsuleID, userID)
	if err != nil {
		return nil, err
	}
	if capsule.Status != status {
		return nil, apperrors.NewNotFound(fmt.Sprintf("%s capsule not found", status))
	}
	return capsule, nil
}

func (s *CapsuleService) viewable(ctx context.Context, capsuleID, userID string) (*models.Capsule, error) {
	ctx = ensureContext(ctx)
	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(ctx, s.db, capsule, userID); err != nil {
		return nil, err
	}
	return capsule, nil
}

// Description returns the capsule description.
func (s *CapsuleService) Description(ctx context.Context, capsuleID, userID string) (string, error) {
	capsule, err := s.viewable(ctx, capsuleID, userID)
	if err != nil {
		return "", err
	}
	return capsule.Description, nil
}

// Questions lists the recall questions without their answers.
func (s *CapsuleService) Questions(ctx context.Context, capsuleID, userID string) ([]models.RecallQuestion, error) {
	if _, err := s.viewable(ctx, capsuleID, userID); err != nil {
		return nil, err
	}

	var questions []models.RecallQuestion
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("capsule_id = ?", capsuleID).
		Order("created_at ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, apperrors.NewNotFound("No questions found for this capsule")
	}
	return questions, nil
}

func (s *CapsuleService) question(ctx context.Context, capsuleID, questionID, userID string) (*models.RecallQuestion, error) {
	if _, err := s.viewable(ctx, capsuleID, userID); err != nil {
		return nil, err
	}

	var question models.RecallQuestion
	if err := s.db.WithContext(ensureContext(ctx)).
		Take(&question, "id = ? AND capsule_id = ?", questionID, capsuleID).Error; err != nil {
		if isNotFound(err) {
			return nil, errQuestionNotFound
		}
		return nil, fmt.Errorf("capsule service: load question: %w", err)
	}
	return &question, nil
}

// SubmitAnswer checks answer against the question's correct choice.
func (s *CapsuleService) SubmitAnswer(ctx context.Context, capsuleID, questionID, userID, answer string) (AnswerResult, error) {
	answer = strings.ToUpper(strings.TrimSpace(answer))
	if !validChoice(answer) {
		return AnswerResult{}, errInvalidAnswer
	}

	question, err := s.question(ctx, capsuleID, questionID, userID)
	if err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{Correct: question.CorrectAnswer == answer}, nil
}

// Explanation returns the explanation attached to a question.
func (s *CapsuleService) Explanation(ctx context.Context, capsuleID, questionID, userID string) (string, error) {
	question, err := s.question(ctx, capsuleID, questionID, userID)
	if err != nil {
		return "", err
	}
	return question.Explanation, nil
}

// ListVisible returns every capsule userID may view, newest first.
func (s *CapsuleService) ListVisible(ctx context.Context, userID string) ([]models.Capsule, error) {
	var capsules []models.Capsule
	if err := s.db.WithContext(ensureContext(ctx)).
		Scopes(visibleTo(userID)).
		Order("capsules.created_at DESC").
		Find(&capsules).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list visible capsules: %w", err)
	}
	return capsules, nil
}

// ListOpenable returns the visible capsules that are locked but past their opening time.
func (s *CapsuleService) ListOpenable(ctx context.Context, userID string) ([]models.Capsule, error) {
	var capsules []models.Capsule
	if err := s.db.WithContext(ensureContext(ctx)).
		Scopes(visibleTo(userID)).
		Where("capsules.status = ? AND capsules.opening_time <= ?", models.CapsuleLocked, s.opts.now()).
		Order("capsules.opening_time ASC").
		Find(&capsules).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list openable capsules: %w", err)
	}
	return capsules, nil
}

// ListOwned returns the capsules created by userID, newest first.
func (s *CapsuleService) ListOwned(ctx context.Context, userID string) ([]models.Capsule, error) {
	var capsules []models.Capsule
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Find(&capsules).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list owned capsules: %w", err)
	}
	return capsules, nil
}

// Viewers returns the users granted access to the capsule.
func (s *CapsuleService) Viewers(ctx context.Context, capsuleID, userID string) ([]models.User, error) {
	if _, err := s.viewable(ctx, capsuleID, userID); err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ensureContext(ctx)).
		Joins("JOIN capsule_viewers ON capsule_viewers.user_id = users.id").
		Where("capsule_viewers.capsule_id = ?", capsuleID).
		Order("users.email ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list viewers: %w", err)
	}
	return users, nil
}

// Media lists the capsule's media. Media of private capsules is only shown to the owner.
func (s *CapsuleService) Media(ctx context.Context, capsuleID, userID string) ([]models.CapsuleMedia, error) {
	capsule, err := s.viewable(ctx, capsuleID, userID)
	if err != nil {
		return nil, err
	}
	if capsule.Privacy == models.PrivacyPrivate {
		if err := requireOwner(capsule, userID); err != nil {
			return nil, err
		}
	}

	var media []models.CapsuleMedia
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("capsule_id = ?", capsuleID).
		Order("created_at ASC").
		Find(&media).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list media: %w", err)
	}
	return media, nil
}

// Reactions lists the reactions left on the capsule.
func (s *CapsuleService) Reactions(ctx context.Context, capsuleID, userID string) ([]models.CapsuleReaction, error) {
	if _, err := s.viewable(ctx, capsuleID, userID); err != nil {
		return nil, err
	}

	var reactions []models.CapsuleReaction
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("capsule_id = ?", capsuleID).
		Order("created_at ASC").
		Find(&reactions).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list reactions: %w", err)
	}
	return reactions, nil
}

// Comments lists comments with the commenter's email and display name.
func (s *CapsuleService) Comments(ctx context.Context, capsuleID, userID string) ([]CommentView, error) {
	if _, err := s.viewable(ctx, capsuleID, userID); err != nil {
		return nil, err
	}

	var comments []models.CapsuleComment
	if err := s.db.WithContext(ensureContext(ctx)).
		Preload("User").
		Where("capsule_id = ?", capsuleID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("capsule service: list comments: %w", err)
	}

	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, mapComment(comment))
	}
	return views, nil
}

func mapComment(comment models.CapsuleComment) CommentView {
	view := CommentView{
		ID:        comment.ID,
		CapsuleID: comment.CapsuleID,
		UserID:    comment.UserID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}
	if comment.User != nil {
		view.Email = comment.User.Email
		view.DisplayName = comment.User.DisplayName
	}
	return view
}

// AddComment stores a comment and notifies the owner when someone else commented.
func (s *CapsuleService) AddComment(ctx context.Context, capsuleID, userID, content string) (*CommentView, error) {
	ctx = ensureContext(ctx)
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewBadRequest("comment content is required")
	}

	capsule, err := s.viewable(ctx, capsuleID, userID)
	if err != nil {
		return nil, err
	}

	comment := models.CapsuleComment{CapsuleID: capsule.ID, UserID: userID, Content: content}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("capsule service: create comment: %w", err)
	}
	if err := s.db.WithContext(ctx).Preload("User").Take(&comment, "id = ?", comment.ID).Error; err != nil {
		return nil, fmt.Errorf("capsule service: reload comment: %w", err)
	}

	view := mapComment(comment)
	s.notifyOwner(ctx, capsule, userID, models.NotificationNewComment, fmt.Sprintf("%s commented on your capsule", actorName(comment.User)))
	return &view, nil
}

// React records the user's reaction, replacing any earlier one.
func (s *CapsuleService) React(ctx context.Context, capsuleID, userID, reactionType string) (*models.CapsuleReaction, error) {
	ctx = ensureContext(ctx)
	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" || len(reactionType) > maxReactionLength {
		return nil, apperrors.NewBadRequest("reaction type is required")
	}

	capsule, err := s.viewable(ctx, capsuleID, userID)
	if err != nil {
		return nil, err
	}

	reaction := models.CapsuleReaction{CapsuleID: capsule.ID, UserID: userID, ReactionType: reactionType}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "capsule_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reaction_type", "updated_at"}),
	}).Create(&reaction).Error; err != nil {
		return nil, fmt.Errorf("capsule service: upsert reaction: %w", err)
	}

	var stored models.CapsuleReaction
	if err := s.db.WithContext(ctx).Preload("User").
		Take(&stored, "capsule_id = ? AND user_id = ?", capsule.ID, userID).Error; err != nil {
		return nil, fmt.Errorf("capsule service: reload reaction: %w", err)
	}

	s.notifyOwner(ctx, capsule, userID, models.NotificationNewReaction, fmt.Sprintf("%s reacted %s to your capsule", actorName(stored.User), reactionType))
	return &stored, nil
}

// AddQuestion attaches another recall question. Only the owner may add questions.
func (s *CapsuleService) AddQuestion(ctx context.Context, capsuleID, userID string, input QuestionInput) (*models.RecallQuestion, error) {
	ctx = ensureContext(ctx)

	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(capsule, userID); err != nil {
		return nil, err
	}

	question, err := buildQuestion(input)
	if err != nil {
		return nil, err
	}
	question.CapsuleID = capsule.ID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.RecallQuestion{}).Where("capsule_id = ?", capsule.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		if count >= MaxRecallQuestions {
			return apperrors.NewBadRequest(fmt.Sprintf("a capsule can have at most %d questions", MaxRecallQuestions))
		}
		return tx.Create(&question).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("capsule service: add question: %w", err)
	}
	return &question, nil
}

// AddMedia uploads files and attaches them to the capsule. Only the owner may add media.
func (s *CapsuleService) AddMedia(ctx context.Context, capsuleID, userID string, uploads []storage.Upload) ([]models.CapsuleMedia, error) {
	ctx = ensureContext(ctx)
	if len(uploads) == 0 {
		return nil, apperrors.NewBadRequest("at least one file is required")
	}

	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(capsule, userID); err != nil {
		return nil, err
	}

	stored, err := storage.Store(ctx, s.storage, capsuleMediaPrefix, uploads, s.opts.now)
	if err != nil {
		return nil, fmt.Errorf("capsule service: upload media: %w", err)
	}

	media := mediaRows(capsule.ID, userID, stored)
	if err := s.db.WithContext(ctx).Create(&media).Error; err != nil {
		if removeErr := storage.Remove(context.WithoutCancel(ctx), s.storage, stored); removeErr != nil {
			s.log.Warn("remove uploaded media after failed insert", zap.Error(removeErr))
		}
		return nil, fmt.Errorf("capsule service: create media: %w", err)
	}
	return media, nil
}

// SetImage uploads the cover image and stores its URL on the capsule.
func (s *CapsuleService) SetImage(ctx context.Context, capsuleID, userID string, upload storage.Upload) (*models.Capsule, error) {
	ctx = ensureContext(ctx)

	capsule, err := loadCapsule(ctx, s.db, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(capsule, userID); err != nil {
		return nil, err
	}

	stored, err := storage.Store(ctx, s.storage, capsuleMediaPrefix, []storage.Upload{upload}, s.opts.now)
	if err != nil {
		return nil, fmt.Errorf("capsule service: upload image: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(capsule).Update("image_url", stored[0].URL).Error; err != nil {
		if removeErr := storage.Remove(context.WithoutCancel(ctx), s.storage, stored); removeErr != nil {
			s.log.Warn("remove uploaded image after failed update", zap.Error(removeErr))
		}
		return nil, fmt.Errorf("capsule service: set image: %w", err)
	}
	capsule.ImageURL = stored[0].URL
	return capsule, nil
}

func (s *CapsuleService) notifyOwner(ctx context.Context, capsule *models.Capsule, actorID string, kind models.NotificationType, message string) {
	if capsule.OwnerID == actorID {
		return
	}
	capsuleID := capsule.ID
	if _, err := s.notifications.CreateImmediate(ctx, capsule.OwnerID, kind, message, &capsuleID); err != nil {
		s.log.Warn("notify capsule owner", zap.String("capsule_id", capsule.ID), zap.String("type", string(kind)), zap.Error(err))
	}
}

func actorName(user *models.User) string {
	if user == nil {
		return "Someone"
	}
	if name := strings.TrimSpace(user.DisplayName); name != "" {
		return name
	}
	return user.Email
}
