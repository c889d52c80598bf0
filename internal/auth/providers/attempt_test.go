package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/timecapsule/internal/cache"
	"github.com/charlesng35/timecapsule/internal/database/testutil"
)

func TestNewAttemptIsRandom(t *testing.T) {
	first, err := NewAttempt()
	require.NoError(t, err)
	second, err := NewAttempt()
	require.NoError(t, err)

	require.NotEmpty(t, first.State)
	require.NotEmpty(t, first.Nonce)
	require.NotEmpty(t, first.Verifier)
	require.NotEqual(t, first.State, second.State)
	require.NotEqual(t, first.Nonce, second.Nonce)
	require.NotEqual(t, first.Verifier, second.Verifier)
}

func TestAttemptStoreConsumesOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewAttemptStore(cache.NewDatabaseStore(db), 0)
	require.Equal(t, DefaultAttemptTTL, store.ttl)
	ctx := context.Background()

	attempt, err := NewAttempt()
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, attempt))

	loaded, err := store.Consume(ctx, " "+attempt.State+" ")
	require.NoError(t, err)
	require.Equal(t, attempt, loaded)

	_, err = store.Consume(ctx, attempt.State)
	require.ErrorIs(t, err, ErrUnknownAttempt)
	_, err = store.Consume(ctx, "")
	require.ErrorIs(t, err, ErrUnknownAttempt)
	_, err = store.Consume(ctx, "never-issued")
	require.ErrorIs(t, err, ErrUnknownAttempt)
}
