// File: internal/server/hub.go
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Buffered outgoing messages per client.
	sendChannelSize = 64

	defaultWriteWait  = 10 * time.Second
	defaultMaxMessage = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The panel is served from the same origin in normal use; local tooling
	// (file:// pages, dev servers) connects cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts session activity to every connected websocket client. It
// is the session's Presenter and Notifier and observes its state, so a
// connected panel mirrors the walkthrough without polling.
type Hub struct {
	logger     *zap.Logger
	writeWait  time.Duration
	maxMessage int64

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	// active tracks running ServeWS calls so Close can wait for them.
	active sync.WaitGroup

	// controller handles Command messages; nil disables them.
	controller *Controller
}

var (
	_ walkthrough.Presenter = (*Hub)(nil)
	_ walkthrough.Notifier  = (*Hub)(nil)
)

// NewHub creates a hub. Zero limits fall back to defaults.
func NewHub(writeWait time.Duration, maxMessage int64, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if maxMessage <= 0 {
		maxMessage = defaultMaxMessage
	}
	return &Hub{
		logger:     logger.Named("hub"),
		writeWait:  writeWait,
		maxMessage: maxMessage,
		clients:    make(map[*wsClient]struct{}),
	}
}

// SetController enables websocket Command messages.
func (h *Hub) SetController(c *Controller) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controller = c
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// -- Session collaborators --

func (h *Hub) Present(_ context.Context, hl schemas.Highlight) error {
	h.Broadcast(MsgTypeHighlight, hl)
	return nil
}

func (h *Hub) Clear(context.Context) error {
	h.Broadcast(MsgTypeHighlightCleared, nil)
	return nil
}

func (h *Hub) Alert(_ context.Context, message string) {
	h.Broadcast(MsgTypeAlert, map[string]string{"message": message})
}

// PublishState is registered as a session observer.
func (h *Hub) PublishState(st walkthrough.State) {
	h.Broadcast(MsgTypeState, st)
}

// Broadcast queues a message for every client. Slow clients drop messages
// rather than block the session.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	payload, err := encodeMessage(msgType, "", data)
	if err != nil {
		h.logger.Error("Failed to encode broadcast message.", zap.String("type", string(msgType)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.queue(payload, msgType)
	}
}

// Close disconnects every client and waits for their handlers to return. The
// hub rejects new connections afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	h.active.Wait()
}

// ServeWS upgrades the request and runs the client's pumps until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn("Failed to upgrade connection to WebSocket.", zap.Error(err))
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendChannelSize)}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.active.Done()
	h.logger.Info("WebSocket client connected.", zap.String("remote_addr", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump(r.Context())
	h.unregister(c)
	<-done
	h.logger.Debug("WebSocket client disconnected.", zap.String("remote_addr", r.RemoteAddr))
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) getController() *Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controller
}

func encodeMessage(msgType MessageType, requestID string, data interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.NewString(),
		RequestID: requestID,
	})
}

// wsClient is one connection. All writes go through send so that only
// writePump touches the connection's writer.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// queue must be called with hub.mu held, which keeps it from racing unregister.
func (c *wsClient) queue(payload []byte, msgType MessageType) {
	select {
	case c.send <- payload:
	default:
		c.hub.logger.Warn("WebSocket send buffer full, dropping message.", zap.String("type", string(msgType)))
	}
}

func (c *wsClient) reply(msgType MessageType, requestID string, data interface{}) {
	payload, err := encodeMessage(msgType, requestID, data)
	if err != nil {
		c.hub.logger.Error("Failed to encode reply.", zap.Error(err))
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; ok {
		c.queue(payload, msgType)
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.hub.maxMessage)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("Failed to set initial read deadline.", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket closed unexpectedly.", zap.Error(err))
			}
			return
		}
		var msg CommandMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(MsgTypeSystemError, "", map[string]string{"error": "invalid message: " + err.Error()})
			continue
		}
		c.process(ctx, msg)
	}
}

// process runs a command synchronously. Commands from one client are
// therefore ordered, and the session's own try-lock rejects overlap with
// other clients.
func (c *wsClient) process(ctx context.Context, msg CommandMessage) {
	if msg.Type != MsgTypeCommand {
		c.reply(MsgTypeSystemError, msg.RequestID, map[string]string{"error": "unsupported message type: " + string(msg.Type)})
		return
	}
	controller := c.hub.getController()
	if controller == nil {
		c.reply(MsgTypeSystemError, msg.RequestID, map[string]string{"error": "commands are disabled"})
		return
	}
	result, err := controller.Do(ctx, msg.Data)
	if err != nil {
		c.reply(MsgTypeSystemError, msg.RequestID, map[string]string{"error": err.Error()})
		return
	}
	c.reply(MsgTypeResult, msg.RequestID, result)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Debug("Error writing WebSocket message.", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
