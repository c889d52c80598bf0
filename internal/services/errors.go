package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
)

// Capsule, reminder and friendship failures shared across services.
var (
	errCapsuleNotFound      = apperrors.NewNotFound("Capsule not found")
	errQuestionNotFound     = apperrors.NewNotFound("Question not found")
	errOpeningTimeRequired  = apperrors.NewBadRequest("opening time is required")
	errInvalidAnswer        = apperrors.NewBadRequest("answer must be one of A, B, C or D")
	errPrivateWithoutViewer = apperrors.NewBadRequest("private capsules require at least one viewer")
	errNotificationInterval = apperrors.NewBadRequest(fmt.Sprintf("notification interval must be between 1 and %d days", MaxNotificationInterval))
	errRequestNotPending    = apperrors.NewConflict("Friend request is no longer pending")
)

// conflictOnDuplicate reports a uniqueness violation as the supplied conflict
// and wraps every other store failure with the operation name.
func conflictOnDuplicate(err error, conflict *apperrors.AppError, op string) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return conflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintError detects a duplicate email, friend request or viewer
// row on sqlite, postgres (23505) and mysql (1062).
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
