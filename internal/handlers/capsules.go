package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/internal/storage"
	"github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/response"
)

const mediaField = "media"

// CapsuleHandler exposes capsule creation, reads, quiz, children and lifecycle endpoints.
type CapsuleHandler struct {
	capsules       *services.CapsuleService
	lifecycle      *services.CapsuleLifecycleService
	dashboard      *services.DashboardService
	maxUploadBytes int64
}

// NewCapsuleHandler constructs a CapsuleHandler. maxUploadBytes bounds multipart bodies.
func NewCapsuleHandler(capsules *services.CapsuleService, lifecycle *services.CapsuleLifecycleService, dashboard *services.DashboardService, maxUploadBytes int64) *CapsuleHandler {
	return &CapsuleHandler{
		capsules:       capsules,
		lifecycle:      lifecycle,
		dashboard:      dashboard,
		maxUploadBytes: maxUploadBytes,
	}
}

type createCapsuleRequest struct {
	Content              string                   `json:"content" validate:"required,notblank"`
	Theme                string                   `json:"theme" validate:"omitempty,max=128"`
	Description          string                   `json:"description"`
	Privacy              string                   `json:"privacy" validate:"omitempty,capsule_privacy"`
	NotificationInterval int                      `json:"notification_interval" validate:"omitempty,min=1,max=30"`
	OpeningTime          time.Time                `json:"opening_time" validate:"required"`
	ViewerIDs            []string                 `json:"viewer_ids"`
	Questions            []services.QuestionInput `json:"questions" validate:"omitempty,max=4,dive"`
}

func (r createCapsuleRequest) input() services.CreateCapsuleInput {
	return services.CreateCapsuleInput{
		Content:              r.Content,
		Theme:                r.Theme,
		Description:          r.Description,
		Privacy:              models.CapsulePrivacy(r.Privacy),
		NotificationInterval: r.NotificationInterval,
		OpeningTime:          r.OpeningTime,
		ViewerIDs:            r.ViewerIDs,
		Questions:            r.Questions,
	}
}

type commentRequest struct {
	Content string `json:"content" validate:"required,notblank,max=2000"`
}

type reactionRequest struct {
	ReactionType string `json:"reaction_type" validate:"required,notblank,max=32"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"required,answer_choice"`
}

// POST /api/capsules
// Accepts JSON, or multipart with the same fields plus "media" files.
func (h *CapsuleHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if !isMultipart(c) {
		var req createCapsuleRequest
		if !bindAndValidate(c, &req) {
			return
		}
		capsule, err := h.capsules.Create(requestContext(c), userID, req.input(), nil)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, capsule)
		return
	}

	form, err := parseMultipart(c, h.maxUploadBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := createRequestFromForm(form.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := validatePayload(&req); err != nil {
		response.Error(c, errors.NewBadRequest(formatValidationError(err)))
		return
	}

	uploads, closeUploads, err := openUploads(form, mediaField)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeFiles(closeUploads)

	capsule, err := h.capsules.Create(requestContext(c), userID, req.input(), uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, capsule)
}

func createRequestFromForm(values map[string][]string) (createCapsuleRequest, error) {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	req := createCapsuleRequest{
		Content:     get("content"),
		Theme:       get("theme"),
		Description: get("description"),
		Privacy:     get("privacy"),
	}

	if raw := get("notification_interval"); raw != "" {
		interval, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.NewBadRequest("notification_interval must be a number")
		}
		req.NotificationInterval = interval
	}

	if raw := get("opening_time"); raw != "" {
		openingTime, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return req, errors.NewBadRequest("opening_time must be an RFC3339 timestamp")
		}
		req.OpeningTime = openingTime
	}

	for _, raw := range values["viewer_ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.ViewerIDs = append(req.ViewerIDs, id)
			}
		}
	}

	if raw := get("questions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Questions); err != nil {
			return req, errors.NewBadRequest("questions must be a JSON array")
		}
	}

	return req, nil
}

func closeFiles(closer func() error) {
	if err := closer(); err != nil {
		logger.WithModule("handlers").Warn("close uploaded files", zap.Error(err))
	}
}

// GET /api/capsules/dashboard
func (h *CapsuleHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, err := h.dashboard.Build(requestContext(c), userID, services.DashboardQuery{
		Page:   parseIntQuery(c, "page", 1),
		Limit:  parseIntQuery(c, "limit", 0),
		Status: c.Query("status"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, page.Entries, response.NewMeta(page.Page, page.Limit, page.Total))
}

// GET /api/capsules/can-view
func (h *CapsuleHandler) ListVisible(c *gin.Context) {
	h.list(c, h.capsules.ListVisible)
}

// GET /api/capsules/can-be-opened
func (h *CapsuleHandler) ListOpenable(c *gin.Context) {
	h.list(c, h.capsules.ListOpenable)
}

// GET /api/capsules/my-capsules
func (h *CapsuleHandler) ListOwned(c *gin.Context) {
	h.list(c, h.capsules.ListOwned)
}

func (h *CapsuleHandler) list(c *gin.Context, fetch func(ctx context.Context, userID string) ([]models.Capsule, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsules, err := fetch(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, capsules)
}

// GET /api/capsules/:id
func (h *CapsuleHandler) Get(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Get(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/opened
func (h *CapsuleHandler) GetOpened(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.GetOpened(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/locked
func (h *CapsuleHandler) GetLocked(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.GetLocked(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/description
func (h *CapsuleHandler) Description(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		description, err := h.capsules.Description(ctx, capsuleID, userID)
		if err != nil {
			return nil, err
		}
		return gin.H{"description": description}, nil
	})
}

// GET /api/capsules/:id/questions
func (h *CapsuleHandler) Questions(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Questions(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/viewers
func (h *CapsuleHandler) Viewers(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Viewers(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/media
func (h *CapsuleHandler) Media(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Media(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/reactions
func (h *CapsuleHandler) Reactions(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Reactions(ctx, capsuleID, userID)
	})
}

// GET /api/capsules/:id/comments
func (h *CapsuleHandler) Comments(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.Comments(ctx, capsuleID, userID)
	})
}

func (h *CapsuleHandler) read(c *gin.Context, fetch func(ctx context.Context, capsuleID, userID string) (any, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsuleID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	data, err := fetch(requestContext(c), capsuleID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, data)
}

// POST /api/capsules/:id/questions/:questionId/answer
func (h *CapsuleHandler) SubmitAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsuleID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathParam(c, "questionId")
	if !ok {
		return
	}

	var req answerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.capsules.SubmitAnswer(requestContext(c), capsuleID, questionID, userID, req.Answer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/capsules/:id/questions/:questionId/explanation
func (h *CapsuleHandler) Explanation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsuleID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathParam(c, "questionId")
	if !ok {
		return
	}

	explanation, err := h.capsules.Explanation(requestContext(c), capsuleID, questionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"explanation": explanation})
}

// POST /api/capsules/:id/open
func (h *CapsuleHandler) Open(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.lifecycle.RequestOpen(ctx, capsuleID, userID)
	})
}

// POST /api/capsules/:id/abort
func (h *CapsuleHandler) Abort(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, _ string) (any, error) {
		return h.lifecycle.Abort(ctx, capsuleID)
	})
}

// DELETE /api/capsules/:id
func (h *CapsuleHandler) Delete(c *gin.Context) {
	h.read(c, func(ctx context.Context, capsuleID, userID string) (any, error) {
		if err := h.lifecycle.Delete(ctx, capsuleID, userID); err != nil {
			return nil, err
		}
		return gin.H{"deleted": true}, nil
	})
}

// POST /api/capsules/:id/comments
func (h *CapsuleHandler) AddComment(c *gin.Context) {
	var req commentRequest
	write(c, &req, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.AddComment(ctx, capsuleID, userID, req.Content)
	})
}

// POST /api/capsules/:id/reactions
func (h *CapsuleHandler) React(c *gin.Context) {
	var req reactionRequest
	write(c, &req, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.React(ctx, capsuleID, userID, req.ReactionType)
	})
}

// POST /api/capsules/:id/questions
func (h *CapsuleHandler) AddQuestion(c *gin.Context) {
	var req services.QuestionInput
	write(c, &req, func(ctx context.Context, capsuleID, userID string) (any, error) {
		return h.capsules.AddQuestion(ctx, capsuleID, userID, req)
	})
}

func write[T any](c *gin.Context, req *T, run func(ctx context.Context, capsuleID, userID string) (any, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsuleID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	if !bindAndValidate(c, req) {
		return
	}
	data, err := run(requestContext(c), capsuleID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, data)
}

// POST /api/capsules/:id/media
func (h *CapsuleHandler) AddMedia(c *gin.Context) {
	h.upload(c, func(ctx context.Context, capsuleID, userID string, uploads []storage.Upload) (any, error) {
		if len(uploads) == 0 {
			return nil, errors.NewBadRequest("at least one media file is required")
		}
		return h.capsules.AddMedia(ctx, capsuleID, userID, uploads)
	})
}

// POST /api/capsules/:id/image
func (h *CapsuleHandler) SetImage(c *gin.Context) {
	h.upload(c, func(ctx context.Context, capsuleID, userID string, uploads []storage.Upload) (any, error) {
		if len(uploads) != 1 {
			return nil, errors.NewBadRequest("exactly one image file is required")
		}
		return h.capsules.SetImage(ctx, capsuleID, userID, uploads[0])
	})
}

func (h *CapsuleHandler) upload(c *gin.Context, run func(ctx context.Context, capsuleID, userID string, uploads []storage.Upload) (any, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	capsuleID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	if !isMultipart(c) {
		response.Error(c, errors.NewBadRequest("multipart form data is required"))
		return
	}

	form, err := parseMultipart(c, h.maxUploadBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	uploads, closeUploads, err := openUploads(form, mediaField)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeFiles(closeUploads)

	data, err := run(requestContext(c), capsuleID, userID, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, data)
}
