package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/charlesng35/timecapsule/internal/cache"
	"github.com/charlesng35/timecapsule/pkg/crypto"
)

// DefaultAttemptTTL bounds how long a user may stay on the consent page.
const DefaultAttemptTTL = 10 * time.Minute

// ErrUnknownAttempt is returned for missing, used or expired state values.
var ErrUnknownAttempt = errors.New("oidc provider: sign-in attempt not found")

// Attempt holds the per sign-in secrets sent to and checked against the issuer.
type Attempt struct {
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
}

// NewAttempt generates a random state, nonce and PKCE verifier.
func NewAttempt() (Attempt, error) {
	state, err := crypto.GenerateToken(24)
	if err != nil {
		return Attempt{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		return Attempt{}, fmt.Errorf("generate nonce: %w", err)
	}
	return Attempt{State: state, Nonce: nonce, Verifier: oauth2.GenerateVerifier()}, nil
}

// AttemptStore keeps pending attempts in the shared cache keyed by state, so
// the callback can land on any instance.
type AttemptStore struct {
	store cache.Store
	ttl   time.Duration
}

// NewAttemptStore wraps store. A non-positive ttl uses DefaultAttemptTTL.
func NewAttemptStore(store cache.Store, ttl time.Duration) *AttemptStore {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	return &AttemptStore{store: store, ttl: ttl}
}

// Save records the attempt until it is consumed or expires.
func (s *AttemptStore) Save(ctx context.Context, attempt Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, attemptKey(attempt.State), payload, s.ttl)
}

// Consume loads the attempt for state and deletes it; each state is usable once.
func (s *AttemptStore) Consume(ctx context.Context, state string) (Attempt, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return Attempt{}, ErrUnknownAttempt
	}

	key := attemptKey(state)
	payload, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, ErrUnknownAttempt
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return Attempt{}, err
	}

	var attempt Attempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return Attempt{}, fmt.Errorf("decode sign-in attempt: %w", err)
	}
	return attempt, nil
}

func attemptKey(state string) string {
	return "oauth:attempt:" + state
}
