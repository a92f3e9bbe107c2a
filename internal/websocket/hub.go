package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrBroadcastFull is returned when the hub cannot keep up with events
var ErrBroadcastFull = errors.New("websocket broadcast queue full")

// TokenValidator returns the subject of a valid token
type TokenValidator func(token string) (string, error)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan []byte
	register       chan *Client
	unregister     chan *Client
	done           chan struct{}
	pumps          sync.WaitGroup
	mu             sync.RWMutex
	validate       TokenValidator
	allowedOrigins []string
	log            *zap.Logger
}

// NewHub creates a new Hub
func NewHub(validate TokenValidator, allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		validate:       validate,
		allowedOrigins: allowedOrigins,
		log:            log.Named("websocket"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done. A hub can
// only be run once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("client_connected", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("client_disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// slow consumer
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Wait blocks until the goroutines of every client have exited. Clients are
// disconnected once the context passed to Run is done.
func (h *Hub) Wait() {
	h.pumps.Wait()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for all connected clients. It never blocks the
// caller; a full queue drops the message and returns ErrBroadcastFull.
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msgJSON, err := json.Marshal(Message{
		Type:    msgType,
		Payload: payloadJSON,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msgJSON:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" || h.validate == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subject, err := h.validate(token)
	if err != nil {
		h.log.Info("connection_rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		h.log.Warn("upgrade_failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   subject + "@" + r.RemoteAddr,
		Conn: conn,
		Hub:  h,
		Send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	h.pumps.Add(2)
	go client.writePump()
	go client.readPump()
}

func normalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer c.Hub.pumps.Done()
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			if !normalClose(err) {
				c.Hub.log.Debug("read_failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Debug("invalid_message", zap.String("client", c.ID), zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	defer c.Hub.pumps.Done()
	for message := range c.Send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			if !normalClose(err) {
				c.Hub.log.Debug("write_failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
	}
	// hub closed the channel
	c.Conn.Close(websocket.StatusGoingAway, "")
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{
			Type:    "pong",
			Payload: json.RawMessage(`{}`),
		})
		c.reply(response)
	default:
		c.Hub.log.Debug("unknown_message_type", zap.String("client", c.ID), zap.String("type", msg.Type))
	}
}

// reply queues a direct response unless the hub already dropped the client
func (c *Client) reply(message []byte) {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- message:
	default:
	}
}
