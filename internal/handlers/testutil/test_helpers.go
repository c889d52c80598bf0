package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/api"
	"github.com/charlesng35/timecapsule/internal/app"
	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/database"
	sharedtestutil "github.com/charlesng35/timecapsule/internal/database/testutil"
	"github.com/charlesng35/timecapsule/internal/handlers"
	"github.com/charlesng35/timecapsule/internal/middleware"
	"github.com/charlesng35/timecapsule/internal/realtime"
	"github.com/charlesng35/timecapsule/internal/storage"
	"github.com/charlesng35/timecapsule/pkg/mail"
)

const (
	// AdminEmail and AdminPassword identify the seeded administrator.
	AdminEmail    = "admin@example.com"
	AdminPassword = "Adm1n$ecret"

	// DefaultPassword satisfies the Medium strength requirement.
	DefaultPassword = "Sup3r$ecret"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T           *testing.T
	DB          *gorm.DB
	Router      *gin.Engine
	JWT         *iauth.JWTService
	Sessions    *iauth.SessionService
	Services    *api.Services
	Hub         *realtime.Hub
	Mailer      *mail.RecordingMailer
	StorageRoot string
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	identity handlers.IdentityProvider
}

// WithIdentityProvider enables external sign-in through provider.
func WithIdentityProvider(provider handlers.IdentityProvider) EnvOption {
	return func(o *envOptions) {
		o.identity = provider
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	var options envOptions
	for _, opt := range opts {
		opt(&options)
	}

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData(database.SeedOptions{
		AdminEmail:    AdminEmail,
		AdminPassword: AdminPassword,
	}))

	root := t.TempDir()
	cfg := &app.Config{
		Server: app.ServerConfig{MaxUploadMB: 4},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
			PasswordReset: app.PasswordResetSettings{
				TTL: time.Hour,
				URL: "http://app.test/reset",
			},
		},
		Storage: app.StorageConfig{
			Driver: "local",
			Local: app.LocalStorageConfig{
				Root:    root,
				BaseURL: "http://localhost/uploads",
			},
		},
		RateLimit: app.RateLimitConfig{
			Requests: 10000,
			Window:   time.Minute,
			Credential: app.BurstConfig{
				Interval: time.Millisecond,
				Burst:    1000,
			},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	objects, err := storage.NewLocalStorage(root, cfg.Storage.Local.BaseURL)
	require.NoError(t, err)

	hub := realtime.NewHub()
	mailer := &mail.RecordingMailer{}

	services, err := api.NewServices(api.ServiceDeps{
		DB:       db,
		Sessions: sessionSvc,
		Objects:  objects,
		Mailer:   mailer,
		Notifier: hub,
		Auth:     cfg.Auth.AuthServiceConfig(),
	})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:    cfg,
		DB:        db,
		JWT:       jwtSvc,
		Sessions:  sessionSvc,
		Hub:       hub,
		RateStore: middleware.NewMemoryRateStore(),
		Identity:  options.identity,
		Services:  services,
	})
	require.NoError(t, err)

	return &Env{
		T:           t,
		DB:          db,
		Router:      router,
		JWT:         jwtSvc,
		Sessions:    sessionSvc,
		Services:    services,
		Hub:         hub,
		Mailer:      mailer,
		StorageRoot: root,
	}
}

// Envelope mirrors response.Response with the data left raw for typed decoding.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Page       int64 `json:"page"`
		PerPage    int64 `json:"per_page"`
		Total      int64 `json:"total"`
		TotalPages int64 `json:"total_pages"`
	} `json:"meta"`
}

// Decode parses the response envelope and, when dest is non-nil, the data payload.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dest != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Role        string `json:"role"`
}

// TokenPair mirrors the issued access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair   `json:"tokens"`
	User   UserPayload `json:"user"`
}

// Signup registers an account and returns the created user.
func (e *Env) Signup(email, password string) UserPayload {
	e.T.Helper()

	rec := e.Request(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(e.T, http.StatusCreated, rec.Code, rec.Body.String())

	var user UserPayload
	Decode(e.T, rec, &user)
	return user
}

// Login authenticates and returns the issued token pair.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	rec := e.Request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(e.T, http.StatusOK, rec.Code, rec.Body.String())

	var result LoginResult
	Decode(e.T, rec, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	return result
}

// Account signs up and logs in, returning the user with its access token.
func (e *Env) Account(email string) (UserPayload, string) {
	e.T.Helper()

	user := e.Signup(email, DefaultPassword)
	return user, e.Login(email, DefaultPassword).Tokens.AccessToken
}

// Request performs an HTTP call against the router. body is JSON encoded when non-nil.
func (e *Env) Request(method, path, token string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// Multipart performs a multipart/form-data request with the given fields and files.
func (e *Env) Multipart(method, path, token string, fields map[string][]string, files ...FilePart) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, value := range values {
			require.NoError(e.T, writer.WriteField(key, value))
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		require.NoError(e.T, err)
		_, err = part.Write(file.Content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}
