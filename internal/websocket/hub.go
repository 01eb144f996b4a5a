// Package websocket pushes the live notification feed to connected
// browsers. Delivery here is best-effort; the durable copy of every
// notification lives in the outbox, so a dropped connection loses
// nothing.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens before the upgrade; the bearer token, not the
		// Origin header, is what gates access.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Client is one authenticated connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
	orgID  string
}

// Message is the wire envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans notifications out to the connections allowed to see them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	outbound   chan targeted
	mu         sync.RWMutex
}

type targeted struct {
	orgID  string
	userID string // empty = everyone in the org
	data   []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan targeted, 256),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			log.Debug().Str("client", client.id).Str("user_id", client.userID).Msg("Feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case msg := <-h.outbound:
			h.mu.RLock()
			recipients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				if c.orgID != msg.orgID {
					continue
				}
				if msg.userID != "" && c.userID != msg.userID {
					continue
				}
				recipients = append(recipients, c)
			}
			h.mu.RUnlock()
			for _, c := range recipients {
				select {
				case c.send <- msg.data:
				default:
					// Slow consumer; drop the connection, the client
					// reconnects and reads the feed from the outbox.
					h.mu.Lock()
					if _, ok := h.clients[c]; ok {
						delete(h.clients, c)
						close(c.send)
					}
					metrics.WebsocketClients.Set(float64(len(h.clients)))
					h.mu.Unlock()
				}
			}

		case <-pingTicker.C:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- nil: // nil triggers a ping frame in writePump
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WebsocketClients.Set(0)
}

// Push routes one notification to its audience. Implements the bus
// feed interface.
func (h *Hub) Push(n *models.Notification) {
	data, err := json.Marshal(Message{Type: "notification", Data: n})
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to marshal feed message")
		return
	}
	select {
	case h.outbound <- targeted{orgID: n.OrganizationID, userID: n.UserID, data: data}:
	default:
		log.Warn().Msg("Feed channel full, dropping push")
	}
}

// ClientCount reports connected clients, for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an already-authenticated request. The caller
// resolves the tenant before handing the request over.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, orgID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade feed connection")
		return
	}
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		id:     uuid.NewString(),
		userID: userID,
		orgID:  orgID,
	}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", c.id).Msg("Feed read error")
			}
			return
		}
		// The feed is one-way; inbound frames only keep the
		// connection alive.
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if data == nil {
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, nil)
}
