package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/timecapsule/pkg/logger"
	"github.com/charlesng35/timecapsule/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBufferSize = 32
)

// Message is the JSON frame pushed to subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Notifier pushes messages to connected users. Services depend on this rather
// than on the hub so they can run without websockets.
type Notifier interface {
	SendToUser(stream, userID string, message Message)
}

// Hub tracks websocket clients per stream and per user.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub accepting same-origin and loopback origins.
func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]map[string]map[*client]struct{}),
		log:     logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Serve upgrades the request and keeps the connection subscribed to streams
// until the client disconnects.
func (h *Hub) Serve(userID string, streams []string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	if len(streams) == 0 {
		streams = DefaultStreams
	}

	c := &client{hub: h, socket: socket, userID: userID, send: make(chan Message, sendBufferSize)}
	h.subscribe(c, streams)
	metrics.RealtimeConnections.Inc()

	go c.writePump()
	c.readPump()
}

// SendToUser delivers message to every connection of userID subscribed to stream.
func (h *Hub) SendToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	targets := make([]*client, 0, len(h.streams[stream][userID]))
	for c := range h.streams[stream][userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(message)
	}
}

// SendToUsers fans message out to several users.
func (h *Hub) SendToUsers(stream string, userIDs []string, message Message) {
	for _, userID := range userIDs {
		h.SendToUser(stream, userID, message)
	}
}

// Connected reports how many connections userID has on stream.
func (h *Hub) Connected(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[normalizeStream(stream)][userID])
}

func (h *Hub) subscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !knownStream(stream) {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		if c.streams == nil {
			c.streams = make(map[string]struct{})
		}
		c.streams[stream] = struct{}{}

		byUser := h.streams[stream]
		if byUser == nil {
			byUser = make(map[string]map[*client]struct{})
			h.streams[stream] = byUser
		}
		if byUser[c.userID] == nil {
			byUser[c.userID] = make(map[*client]struct{})
		}
		byUser[c.userID][c] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeLocked(c, stream)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range c.streams {
		h.removeLocked(c, stream)
	}
}

func (h *Hub) removeLocked(c *client, stream string) {
	delete(c.streams, stream)

	byUser := h.streams[stream]
	if byUser == nil {
		return
	}
	delete(byUser[c.userID], c)
	if len(byUser[c.userID]) == 0 {
		delete(byUser, c.userID)
	}
	if len(byUser) == 0 {
		delete(h.streams, stream)
	}
}

type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{}
	send    chan Message

	mu     sync.Mutex
	closed bool
}

func (c *client) enqueue(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.log.Warn("dropping slow realtime client", zap.String("user_id", c.userID))
		c.closeLocked()
	}
}

func (c *client) readPump() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.enqueue(Message{Event: "pong"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.hub.unregister(c)
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := stripPort(parsed.Host)
	if originHost == stripPort(r.Host) {
		return true
	}
	if ip := net.ParseIP(originHost); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(originHost, "localhost")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func knownStream(stream string) bool {
	switch stream {
	case StreamNotifications, StreamCapsules:
		return true
	}
	return false
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
