package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string, streams []string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, streams, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversToSubscribedUser(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", nil)

	require.Eventually(t, func() bool {
		return hub.Connected(StreamNotifications, "user-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.SendToUser(StreamNotifications, "user-2", Message{Event: "ignored"})
	hub.SendToUser(" Notifications ", "user-1", Message{Event: EventNotificationCreated, Data: map[string]string{"message": "hi"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, EventNotificationCreated, msg.Event)
}

func TestHubSubscribeControlMessages(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", []string{StreamNotifications, "unknown"})

	require.Eventually(t, func() bool {
		return hub.Connected(StreamNotifications, "user-1") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, hub.Connected(StreamCapsules, "user-1"))

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{StreamCapsules}}))
	require.Eventually(t, func() bool {
		return hub.Connected(StreamCapsules, "user-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamNotifications}}))
	require.Eventually(t, func() bool {
		return hub.Connected(StreamNotifications, "user-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "user-1", nil)

	require.Eventually(t, func() bool {
		return hub.Connected(StreamNotifications, "user-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.Connected(StreamNotifications, "user-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSameOriginOrLoopback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://capsules.example.com/ws", nil)
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://capsules.example.com")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://evil.example.org")
	require.False(t, sameOriginOrLoopback(req))
}
