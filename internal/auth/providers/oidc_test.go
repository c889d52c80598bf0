package providers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "capsule-client"
	testKeyID    = "issuer-key-1"
)

// fakeIssuer serves discovery, keys and a token endpoint minting RS256 ID tokens.
type fakeIssuer struct {
	*httptest.Server
	key *rsa.PrivateKey

	mu       sync.Mutex
	nonce    string
	verifier string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := &fakeIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                                issuer.URL,
			"authorization_endpoint":                issuer.URL + "/auth",
			"token_endpoint":                        issuer.URL + "/token",
			"jwks_uri":                              issuer.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "valid-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		issuer.mu.Lock()
		issuer.verifier = r.PostForm.Get("code_verifier")
		nonce := issuer.nonce
		issuer.mu.Unlock()

		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":            issuer.URL,
			"aud":            testClientID,
			"sub":            "109876543210",
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
			"nonce":          nonce,
			"email":          "Grace@Example.com",
			"email_verified": "true",
			"name":           " Grace Hopper ",
			"picture":        "https://lh3.example.com/grace.png",
		})
		token.Header["kid"] = testKeyID
		signed, err := token.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	})

	issuer.Server = httptest.NewServer(mux)
	t.Cleanup(issuer.Close)
	return issuer
}

// mintNonce sets the nonce placed in the next ID token.
func (f *fakeIssuer) mintNonce(nonce string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce = nonce
}

func (f *fakeIssuer) receivedVerifier() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifier
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestProvider(t *testing.T, issuer *fakeIssuer) *OIDCProvider {
	t.Helper()

	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		Issuer:       issuer.URL,
		ClientID:     testClientID,
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/api/auth/google/callback",
	}, OIDCOptions{HTTPClient: issuer.Client(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	return provider
}

func TestNewOIDCProviderValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewOIDCProvider(ctx, OIDCConfig{ClientSecret: "s", RedirectURL: "http://cb"}, OIDCOptions{})
	require.ErrorContains(t, err, "client id")
	_, err = NewOIDCProvider(ctx, OIDCConfig{ClientID: "c", RedirectURL: "http://cb"}, OIDCOptions{})
	require.ErrorContains(t, err, "client secret")
	_, err = NewOIDCProvider(ctx, OIDCConfig{ClientID: "c", ClientSecret: "s"}, OIDCOptions{})
	require.ErrorContains(t, err, "redirect url")

	empty := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(empty.Close)
	_, err = NewOIDCProvider(ctx, OIDCConfig{Issuer: empty.URL, ClientID: "c", ClientSecret: "s", RedirectURL: "http://cb"}, OIDCOptions{HTTPClient: empty.Client()})
	require.ErrorContains(t, err, "discovery failed")
}

func TestOIDCProviderAuthCodeURL(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := newTestProvider(t, issuer)
	require.Equal(t, "google", provider.Name())

	attempt, err := NewAttempt()
	require.NoError(t, err)

	parsed, err := url.Parse(provider.AuthCodeURL(attempt))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(parsed.String(), issuer.URL+"/auth"))

	query := parsed.Query()
	require.Equal(t, attempt.State, query.Get("state"))
	require.Equal(t, attempt.Nonce, query.Get("nonce"))
	require.Equal(t, testClientID, query.Get("client_id"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.NotEmpty(t, query.Get("code_challenge"))
	require.NotEqual(t, attempt.Verifier, query.Get("code_challenge"))
	require.Contains(t, query.Get("scope"), "openid")
	require.Contains(t, query.Get("scope"), "email")
}

func TestOIDCProviderExchange(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := newTestProvider(t, issuer)
	ctx := context.Background()

	attempt, err := NewAttempt()
	require.NoError(t, err)
	issuer.mintNonce(attempt.Nonce)

	identity, err := provider.Exchange(ctx, "valid-code", attempt)
	require.NoError(t, err)
	require.Equal(t, &Identity{
		Provider:      "google",
		Subject:       "109876543210",
		Email:         "grace@example.com",
		EmailVerified: true,
		DisplayName:   "Grace Hopper",
		AvatarURL:     "https://lh3.example.com/grace.png",
	}, identity)
	require.Equal(t, attempt.Verifier, issuer.receivedVerifier())

	_, err = provider.Exchange(ctx, "", attempt)
	require.ErrorContains(t, err, "authorization code missing")

	_, err = provider.Exchange(ctx, "revoked-code", attempt)
	require.ErrorContains(t, err, "exchange failed")

	other, err := NewAttempt()
	require.NoError(t, err)
	_, err = provider.Exchange(ctx, "valid-code", other)
	require.ErrorIs(t, err, ErrNonceMismatch)
}

func TestBoolClaim(t *testing.T) {
	require.True(t, boolClaim(true))
	require.True(t, boolClaim("TRUE"))
	require.False(t, boolClaim("false"))
	require.False(t, boolClaim(nil))
	require.False(t, boolClaim(1.0))
}
