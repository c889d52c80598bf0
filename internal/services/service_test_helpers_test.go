package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/timecapsule/internal/models"
	"github.com/charlesng35/timecapsule/internal/realtime"
	"github.com/charlesng35/timecapsule/internal/testutil"
)

var testEpoch = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestClock() *testutil.Clock {
	return testutil.NewClock(testEpoch)
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:       email,
		Password:    "hash",
		DisplayName: strings.SplitN(email, "@", 2)[0],
		Role:        models.RoleUser,
		IsActive:    true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]realtime.Message
}

func (n *recordingNotifier) SendToUser(stream, userID string, message realtime.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[string][]realtime.Message)
	}
	message.Stream = stream
	n.messages[userID] = append(n.messages[userID], message)
}

func (n *recordingNotifier) For(userID string) []realtime.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]realtime.Message(nil), n.messages[userID]...)
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string]string
	failPut bool
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string]string)}
}

func (m *memoryStorage) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if m.failPut {
		return "", io.ErrUnexpectedEOF
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(data)
	return "https://cdn.test/" + key, nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
