package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-video/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-video/internal/video"
)

// WebSocket message types and channels.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelFrame carries binary encoded records.
	ChannelFrame = "video.frame"
	// ChannelState carries JSON state and session events.
	ChannelState = "video.state"
)

// Hub defaults applied to unset config values.
const (
	defaultWSSendBuffer     = 16
	defaultWSMaxMessageSize = 4096
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// WSMessage represents a JSON message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsOutbound is one queued message and its WebSocket frame type.
type wsOutbound struct {
	kind int
	data []byte
}

// Hub fans video records and state events out to WebSocket clients.
//
// Records are encoded once per frame and only while a client listens on
// ChannelFrame. A client whose buffer is full misses frames rather than
// slowing capture.
type Hub struct {
	logger       *logging.Logger
	output       VideoOutput
	sendBuffer   int
	maxMessage   int64
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	sub     video.Subscription
	started bool
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan wsOutbound
	subscriptions map[string]struct{}
	mu            sync.RWMutex
	dropped       uint64
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a WebSocket hub fed by output.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, output VideoOutput) *Hub {
	h := &Hub{
		logger:       logger,
		output:       output,
		sendBuffer:   cfg.SendBuffer,
		maxMessage:   int64(cfg.MaxMessageSize),
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:  time.Duration(cfg.PongTimeout) * time.Second,
		clients:      make(map[*WSClient]struct{}),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultWSSendBuffer
	}
	if h.maxMessage <= 0 {
		h.maxMessage = defaultWSMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultWSPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultWSPongTimeout
	}
	return h
}

// Start subscribes the hub to the video output. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.sub = h.output.Subscribe(h.handleRecord)
	h.started = true
}

// Stop unsubscribes from the output and disconnects all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	started := h.started
	h.started = false
	sub := h.sub
	h.mu.Unlock()

	if started {
		if err := h.output.Unsubscribe(sub); err != nil {
			h.logger.Debug("websocket hub unsubscribe", "error", err)
		}
	}
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	client.mu.RLock()
	dropped := client.dropped
	client.mu.RUnlock()
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount(), "dropped", dropped)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribers snapshots the clients listening on channel.
func (h *Hub) subscribers(channel string) []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*WSClient
	for client := range h.clients {
		if client.isSubscribed(channel) {
			out = append(out, client)
		}
	}
	return out
}

// handleRecord runs on the capture goroutine and must not block.
func (h *Hub) handleRecord(rec *video.Record) {
	clients := h.subscribers(ChannelFrame)
	if len(clients) == 0 {
		return
	}

	data, err := video.EncodeRecord(make([]byte, 0, video.EncodedSize(rec)), h.output.Encoding(), rec)
	if err != nil {
		h.logger.Warn("websocket record encoding failed", "error", err)
		return
	}
	for _, client := range clients {
		client.trySend(wsOutbound{kind: websocket.BinaryMessage, data: data})
	}
}

// Broadcast sends a JSON event to all clients subscribed to channel.
func (h *Hub) Broadcast(channel, eventType string, payload any) {
	clients := h.subscribers(channel)
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}
	for _, client := range clients {
		client.trySend(wsOutbound{kind: websocket.TextMessage, data: data})
	}
}

// StateChanged implements video.Observer.
func (h *Hub) StateChanged(from, to video.State) {
	h.Broadcast(ChannelState, "state_changed", map[string]string{
		"from": from.String(),
		"to":   to.String(),
	})
}

// SessionStarted implements video.Observer.
func (h *Hub) SessionStarted(info video.SessionInfo) {
	h.Broadcast(ChannelState, "session_started", sessionEvent(info, nil))
}

// SessionEnded implements video.Observer.
func (h *Hub) SessionEnded(info video.SessionInfo, err error) {
	h.Broadcast(ChannelState, "session_ended", sessionEvent(info, err))
}

func sessionEvent(info video.SessionInfo, err error) map[string]any {
	ev := map[string]any{
		"session_id": info.ID.String(),
		"attempt":    info.Attempt,
		"frames":     info.Frames,
		"bytes":      info.Bytes,
	}
	if err != nil {
		ev["error"] = err.Error()
	}
	return ev
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection and registers the client. The
// optional "channels" query parameter selects the initial subscriptions;
// by default a client receives both channels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channels := []string{ChannelFrame, ChannelState}
	if q := r.URL.Query().Get("channels"); q != "" {
		channels = strings.Split(q, ",")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan wsOutbound, s.hub.sendBuffer),
		subscriptions: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			client.subscriptions[ch] = struct{}{}
		}
	}

	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongTimeout
	c.conn.SetReadLimit(c.hub.maxMessage)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscription adds or removes channels from the client's list.
func (c *WSClient) handleSubscription(msg WSMessage) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sub WSSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if msg.Type == WSTypeSubscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if msg.Type == WSTypeUnsubscribe {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

// trySend queues a message without blocking. It silently handles closed
// channels (client disconnected during broadcast) and full buffers (slow
// client).
func (c *WSClient) trySend(msg wsOutbound) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- msg:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// isSubscribed checks if the client is subscribed to a channel.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// sendResponse sends a JSON response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(wsOutbound{kind: websocket.TextMessage, data: data})
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
