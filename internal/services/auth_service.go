package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/auth/providers"
	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/pkg/crypto"
	apperrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/mail"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

const (
	defaultResetTokenTTL   = time.Hour
	defaultResetTokenBytes = 32
)

var (
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = apperrors.NewConflict("Email is already registered")
	// ErrWeakPassword is returned when a password does not reach Medium strength.
	ErrWeakPassword = apperrors.New("WEAK_PASSWORD", "Password must contain at least three of: upper case, lower case, digit, special character", http.StatusBadRequest)
	// ErrInvalidResetToken covers unknown, used and expired reset tokens.
	ErrInvalidResetToken = apperrors.New("INVALID_RESET_TOKEN", "Reset token is invalid or has expired", http.StatusBadRequest)
)

var resetEmailTemplate = template.Must(template.New("reset").Parse(
	`<p>Hello {{.Name}},</p>
<p>We received a request to reset your Time Capsule password. Use the link below within {{.Validity}}:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>`))

// AuthConfig tunes the password reset flow.
type AuthConfig struct {
	ResetTokenTTL time.Duration
	ResetURL      string
}

// SignupInput describes a new account.
type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginResult carries the issued tokens and the authenticated user.
type LoginResult struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   *models.User    `json:"user"`
}

// AuthService handles signup, login, token refresh and password resets.
type AuthService struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	mailer   mail.Mailer
	cfg      AuthConfig
	opts     options
	log      *zap.Logger
}

// NewAuthService constructs an AuthService. mailer may be nil when email is disabled.
func NewAuthService(db *gorm.DB, sessions *iauth.SessionService, mailer mail.Mailer, cfg AuthConfig, opts ...Option) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = defaultResetTokenTTL
	}
	return &AuthService{
		db:       db,
		sessions: sessions,
		mailer:   mailer,
		cfg:      cfg,
		opts:     buildOptions(opts),
		log:      serviceLogger("auth"),
	}, nil
}

// Signup registers a user with the regular role.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if !iauth.EvaluatePassword(input.Password).Acceptable() {
		return nil, ErrWeakPassword
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	user := models.User{
		Email:       email,
		Password:    hashed,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        models.RoleUser,
		IsActive:    true,
	}
	if user.DisplayName == "" {
		user.DisplayName = strings.SplitN(email, "@", 2)[0]
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, conflictOnDuplicate(err, ErrEmailTaken, "auth service: create user")
	}
	return &user, nil
}

// Login verifies the credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string, meta iauth.SessionMetadata) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", normaliseEmail(email)).Error
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}
	if err != nil || !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.openSession(ctx, &user, meta)
}

// LoginWithIdentity signs in through an external provider. The identity is
// matched by provider and subject; on first sight it is linked to the account
// with the same verified email, or a new account without a password is created.
func (s *AuthService) LoginWithIdentity(ctx context.Context, identity providers.Identity, meta iauth.SessionMetadata) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	identity.Provider = strings.ToLower(strings.TrimSpace(identity.Provider))
	identity.Subject = strings.TrimSpace(identity.Subject)
	identity.Email = normaliseEmail(identity.Email)
	if identity.Provider == "" || identity.Subject == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.UserIdentity
		err := tx.Preload("User").
			Take(&link, "provider = ? AND provider_user_id = ?", identity.Provider, identity.Subject).Error
		switch {
		case err == nil && link.User != nil:
			user = *link.User
			return refreshIdentity(tx, &link, &user, identity)
		case err != nil && !isNotFound(err):
			return fmt.Errorf("load identity: %w", err)
		}

		if identity.Email == "" {
			return apperrors.NewBadRequest("provider did not share an email address")
		}
		err = tx.Take(&user, "email = ?", identity.Email).Error
		switch {
		case err == nil:
			if !identity.EmailVerified {
				return ErrEmailTaken
			}
		case isNotFound(err):
			user = models.User{
				Email:       identity.Email,
				DisplayName: identity.DisplayName,
				AvatarURL:   identity.AvatarURL,
				Role:        models.RoleUser,
				IsActive:    true,
			}
			if user.DisplayName == "" {
				user.DisplayName = strings.SplitN(identity.Email, "@", 2)[0]
			}
			if err := tx.Create(&user).Error; err != nil {
				return conflictOnDuplicate(err, ErrEmailTaken, "create user")
			}
		default:
			return fmt.Errorf("load user: %w", err)
		}

		link = models.UserIdentity{
			UserID:         user.ID,
			Provider:       identity.Provider,
			ProviderUserID: identity.Subject,
			Email:          identity.Email,
		}
		if err := tx.Create(&link).Error; err != nil {
			return conflictOnDuplicate(err, apperrors.NewConflict("Identity is already linked"), "link identity")
		}
		return refreshIdentity(tx, &link, &user, identity)
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.openSession(ctx, &user, meta)
}

// refreshIdentity keeps the linked email current and fills profile fields the user left empty.
func refreshIdentity(tx *gorm.DB, link *models.UserIdentity, user *models.User, identity providers.Identity) error {
	if identity.Email != "" && link.Email != identity.Email {
		if err := tx.Model(link).Update("email", identity.Email).Error; err != nil {
			return fmt.Errorf("update identity: %w", err)
		}
	}

	updates := map[string]any{}
	if user.DisplayName == "" && identity.DisplayName != "" {
		updates["display_name"] = identity.DisplayName
		user.DisplayName = identity.DisplayName
	}
	if user.AvatarURL == "" && identity.AvatarURL != "" {
		updates["avatar_url"] = identity.AvatarURL
		user.AvatarURL = identity.AvatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, meta iauth.SessionMetadata) (*LoginResult, error) {
	now := s.opts.now()
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": meta.IPAddress,
	}).Error; err != nil {
		return nil, fmt.Errorf("auth service: record login: %w", err)
	}
	user.LastLoginAt = &now

	pair, _, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("auth service: create session: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &LoginResult{Tokens: pair, User: user}, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (iauth.TokenPair, error) {
	pair, _, err := s.sessions.RefreshSession(ensureContext(ctx), refreshToken)
	if err != nil {
		if isSessionError(err) {
			return iauth.TokenPair{}, apperrors.ErrUnauthorized.WithMessage("Refresh token is invalid or expired")
		}
		return iauth.TokenPair{}, err
	}
	return pair, nil
}

// Logout revokes the session behind the current access token.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.RevokeSession(ensureContext(ctx), sessionID); err != nil {
		if isSessionError(err) {
			return apperrors.ErrUnauthorized
		}
		return err
	}
	return nil
}

// RequestPasswordReset mails a single use reset link. Unknown emails are
// accepted silently so the endpoint does not reveal registered addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", normaliseEmail(email)).Error; err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("auth service: load user: %w", err)
	}

	token, err := crypto.GenerateToken(defaultResetTokenBytes)
	if err != nil {
		return fmt.Errorf("auth service: generate reset token: %w", err)
	}

	now := s.opts.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used_at IS NULL", user.ID).
			Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: crypto.HashToken(token),
			ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("auth service: store reset token: %w", err)
	}

	body, err := s.resetEmail(user, token)
	if err != nil {
		return fmt.Errorf("auth service: render reset email: %w", err)
	}
	if err := mail.SendHTML(ctx, s.mailer, user.Email, "Reset your Time Capsule password", body); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("password reset requested but email delivery is disabled", zap.String("user_id", user.ID))
			return nil
		}
		return fmt.Errorf("auth service: send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token, stores the new password and signs the
// user out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if !iauth.EvaluatePassword(newPassword).Acceptable() {
		return ErrWeakPassword
	}

	var reset models.PasswordResetToken
	if err := s.db.WithContext(ctx).Take(&reset, "token_hash = ?", crypto.HashToken(token)).Error; err != nil {
		if isNotFound(err) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("auth service: load reset token: %w", err)
	}

	now := s.opts.now()
	if reset.UsedAt != nil || !reset.ExpiresAt.After(now) {
		return ErrInvalidResetToken
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		consumed := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if consumed.Error != nil {
			return consumed.Error
		}
		if consumed.RowsAffected == 0 {
			return ErrInvalidResetToken
		}
		return tx.Model(&models.User{}).Where("id = ?", reset.UserID).Update("password", hashed).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("auth service: reset password: %w", err)
	}

	if err := s.sessions.RevokeUserSessions(ctx, reset.UserID); err != nil {
		return fmt.Errorf("auth service: revoke sessions: %w", err)
	}
	return nil
}

// CleanupResetTokens deletes used and expired reset tokens.
func (s *AuthService) CleanupResetTokens(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("used_at IS NOT NULL OR expires_at < ?", s.opts.now()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("auth service: cleanup reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *AuthService) resetEmail(user models.User, token string) (string, error) {
	link := token
	if base := strings.TrimSpace(s.cfg.ResetURL); base != "" {
		link = base + "?token=" + url.QueryEscape(token)
	}

	var buf bytes.Buffer
	err := resetEmailTemplate.Execute(&buf, map[string]string{
		"Name":     actorName(&user),
		"Link":     link,
		"Validity": s.cfg.ResetTokenTTL.String(),
	})
	return buf.String(), err
}

func isSessionError(err error) bool {
	return errors.Is(err, iauth.ErrSessionNotFound) ||
		errors.Is(err, iauth.ErrSessionRevoked) ||
		errors.Is(err, iauth.ErrSessionExpired) ||
		errors.Is(err, iauth.ErrSessionInvalidToken)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
