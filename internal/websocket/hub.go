// Package websocket pushes stored heartbeats to the websocket clients of
// the monitor owner.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// ErrUnauthorized is returned for a missing, invalid or expired token.
var ErrUnauthorized = errors.New("unauthorized")

const sendBuffer = 256

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID      string
	OwnerID int
	Conn    *websocket.Conn
	Hub     *Hub
	Send    chan []byte
}

type envelope struct {
	ownerID int
	data    []byte
}

// Hub maintains active clients and fans messages out to the clients of
// the owner they belong to.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int

	jwtSecret      string
	allowedOrigins []string
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan envelope, 1024),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
				go client.Conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			log.Printf("websocket: client %s connected (owner %d)", client.ID, client.OwnerID)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				log.Printf("websocket: client %s disconnected", client.ID)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.OwnerID != msg.ownerID {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					log.Printf("websocket: client %s is too slow, disconnecting", client.ID)
					h.drop(client)
					go client.Conn.Close(websocket.StatusPolicyViolation, "too slow")
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish sends a stored heartbeat to the clients of ownerID. It never
// blocks; beats are dropped when the hub is saturated.
func (h *Hub) Publish(ownerID int, hb *models.Heartbeat) {
	data, err := encode("heartbeat", hb)
	if err != nil {
		log.Printf("websocket: failed to encode heartbeat %d: %v", hb.ID, err)
		return
	}

	select {
	case h.broadcast <- envelope{ownerID: ownerID, data: data}:
	default:
		log.Printf("websocket: broadcast queue full, dropping heartbeat %d", hb.ID)
	}
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: payloadJSON})
}

// ParseOwner validates an HS256 token and returns its user_id claim.
func (h *Hub) ParseOwner(token string) (int, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrUnauthorized
	}
	uid, ok := claims["user_id"].(float64)
	if !ok || uid <= 0 {
		return 0, fmt.Errorf("%w: missing user_id", ErrUnauthorized)
	}
	return int(uid), nil
}

// IssueToken signs a token that ParseOwner accepts.
func IssueToken(secret string, userID int, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	})
	return token.SignedString([]byte(secret))
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	ownerID, err := h.ParseOwner(token)
	if err != nil {
		log.Printf("websocket: connection rejected from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Conn:    conn,
		Hub:     h,
		Send:    make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump()
}

// readPump reads messages until the connection closes.
func (c *Client) readPump() {
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
			if !isNormalClose(err) {
				log.Printf("websocket: unexpected read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("websocket: failed to parse message: %v", err)
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump writes messages until Send is closed by the hub.
func (c *Client) writePump() {
	for message := range c.Send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			if !isNormalClose(err) {
				log.Printf("websocket: unexpected write error: %v", err)
			}
			return
		}
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		response, _ := json.Marshal(Message{Type: "pong", Payload: json.RawMessage(`{}`)})
		if err := c.Conn.Write(ctx, websocket.MessageText, response); err != nil {
			log.Printf("websocket: failed to answer ping: %v", err)
		}
	default:
		log.Printf("websocket: unknown message type %q from %s", msg.Type, c.ID)
	}
}
