package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/models"
)

type stubSessions struct {
	revoked map[string]bool
}

func (s stubSessions) ValidateSession(_ context.Context, sessionID string) error {
	if s.revoked[sessionID] {
		return errors.New("revoked")
	}
	return nil
}

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return jwtSvc
}

func issueToken(t *testing.T, jwtSvc *iauth.JWTService, userID, sessionID, role string) string {
	t.Helper()
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
	})
	require.NoError(t, err)
	return token
}

func authorizedGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	token := issueToken(t, jwtSvc, "user-123", "session-abc", models.RoleUser)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(CtxUserIDKey),
			"session_id": c.GetString(CtxSessionIDKey),
			"role":       c.GetString(CtxRoleKey),
		})
	})

	w := authorizedGet(r, "/secure", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = authorizedGet(r, "/secure", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = authorizedGet(r, "/secure", token)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "session-abc", payload["session_id"])
	require.Equal(t, models.RoleUser, payload["role"])
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	sessions := stubSessions{revoked: map[string]bool{"revoked": true}}

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, sessions), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, authorizedGet(r, "/secure", issueToken(t, jwtSvc, "u1", "live", models.RoleUser)).Code)
	require.Equal(t, http.StatusUnauthorized, authorizedGet(r, "/secure", issueToken(t, jwtSvc, "u1", "revoked", models.RoleUser)).Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)

	r := gin.New()
	r.GET("/admin", Auth(jwtSvc, nil), RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/anonymous", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusForbidden, authorizedGet(r, "/admin", issueToken(t, jwtSvc, "u1", "s1", models.RoleUser)).Code)
	require.Equal(t, http.StatusOK, authorizedGet(r, "/admin", issueToken(t, jwtSvc, "u2", "s2", models.RoleAdmin)).Code)
	require.Equal(t, http.StatusUnauthorized, authorizedGet(r, "/anonymous", "").Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer   abc "))
	require.Empty(t, bearerToken("Basic abc"))
	require.Empty(t, bearerToken("Bearer"))
}
