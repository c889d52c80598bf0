package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

const (
	defaultDashboardLimit = 10
	maxDashboardLimit     = 100
	adEvery               = 2
)

// Dashboard entry types.
const (
	EntryCapsule = "capsule"
	EntryAd      = "ad"
)

// DashboardEntry is either a capsule or an advertisement.
type DashboardEntry struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DashboardQuery selects one page of the dashboard.
type DashboardQuery struct {
	Page   int
	Limit  int
	Status string
}

// DashboardPage is the assembled dashboard plus paging info for the capsules.
type DashboardPage struct {
	Entries []DashboardEntry
	Page    int
	Limit   int
	Total   int64
}

// DashboardService assembles a user's capsule feed with advertisements mixed in.
type DashboardService struct {
	db *gorm.DB
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(db *gorm.DB) (*DashboardService, error) {
	if db == nil {
		return nil, errors.New("dashboard service: db is required")
	}
	return &DashboardService{db: db}, nil
}

// Build returns the capsules visible to userID, newest first, interleaved with
// the active advertisements.
func (s *DashboardService) Build(ctx context.Context, userID string, query DashboardQuery) (*DashboardPage, error) {
	ctx = ensureContext(ctx)

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultDashboardLimit
	}
	if limit > maxDashboardLimit {
		limit = maxDashboardLimit
	}

	status, err := parseStatusFilter(query.Status)
	if err != nil {
		return nil, err
	}

	base := s.db.WithContext(ctx).Model(&models.Capsule{}).Scopes(visibleTo(userID))
	if status != "" {
		base = base.Where("capsules.status = ?", status)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: count capsules: %w", err)
	}

	var capsules []models.Capsule
	if err := base.
		Preload("Owner").
		Order("capsules.created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&capsules).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: list capsules: %w", err)
	}

	var ads []models.Advertisement
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Order("created_at ASC").
		Find(&ads).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: list advertisements: %w", err)
	}

	return &DashboardPage{
		Entries: Interleave(capsules, ads),
		Page:    page,
		Limit:   limit,
		Total:   total,
	}, nil
}

// Interleave inserts an advertisement after every second capsule, cycling
// through ads. Without ads the capsules are returned unchanged.
func Interleave(capsules []models.Capsule, ads []models.Advertisement) []DashboardEntry {
	entries := make([]DashboardEntry, 0, len(capsules)+len(capsules)/adEvery)
	adIndex := 0
	for i := range capsules {
		entries = append(entries, DashboardEntry{Type: EntryCapsule, Data: capsules[i]})
		if len(ads) > 0 && (i+1)%adEvery == 0 {
			entries = append(entries, DashboardEntry{Type: EntryAd, Data: ads[adIndex%len(ads)]})
			adIndex++
		}
	}
	return entries
}

func parseStatusFilter(raw string) (models.CapsuleStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, status := range []models.CapsuleStatus{models.CapsuleLocked, models.CapsuleOpened} {
		if strings.EqualFold(raw, string(status)) {
			return status, nil
		}
	}
	return "", apperrors.NewBadRequest("status must be Locked or Opened")
}
