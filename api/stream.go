/*
stream.go - Websocket snapshot stream

PURPOSE:
  Pushes every published snapshot of a session to websocket clients
  subscribed to it. The Hub is registered as a sink on every engine.

DELIVERY:
  - Each client has a buffered send queue. A client whose queue is full
    is disconnected rather than slowing the engine down.
  - Messages carry seq; clients keep the highest one they have seen.
  - Hub.Push returns an error only if the hub loop is not running.

SEE ALSO:
  - earnings/sink.go: Sink contract
  - handlers.go: Stream endpoint wiring
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/warp/touchfish/earnings"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Queued snapshots per client before it is dropped.
	sendBuffer = 64
)

// ErrHubStopped is returned by Push when the hub loop is not running.
var ErrHubStopped = fmt.Errorf("stream hub stopped: %w", earnings.ErrSinkUnavailable)

type streamMessage struct {
	sessionID earnings.SessionID
	payload   []byte
}

// Client is one websocket subscriber.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID earnings.SessionID
	send      chan []byte
}

// Hub maintains the set of active clients and broadcasts snapshots to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan streamMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	upgrader   websocket.Upgrader
}

// NewHub initializes a new Hub. Call Run before use.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan streamMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run handles registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			log.Println("[Stream] Hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[Stream] client subscribed to %s", client.sessionID)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("[Stream] client left %s", client.sessionID)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients for a session, or all
// clients when sessionID is empty.
func (h *Hub) ClientCount(sessionID earnings.SessionID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if sessionID == "" || c.sessionID == sessionID {
			n++
		}
	}
	return n
}

// Push implements earnings.Sink.
func (h *Hub) Push(ctx context.Context, snap earnings.Snapshot) error {
	payload, err := json.Marshal(toSnapshotDTO(snap))
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- streamMessage{sessionID: snap.SessionID, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// CLIENT PUMPS
// =============================================================================

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Clients never send anything meaningful; reading drives pong
		// handling and notices the close.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Stream] read error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// HANDLER
// =============================================================================

// StreamSession upgrades to a websocket and streams the session's snapshots.
// The current snapshot is sent first so the client never starts blank.
func (h *Handler) StreamSession(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Streaming disabled", nil)
		return
	}
	id := earnings.SessionID(chi.URLParam(r, "id"))
	eng, err := h.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, "Session not found", err)
		return
	}

	conn, err := h.Hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Stream] upgrade failed: %v", err)
		return
	}

	client := &Client{hub: h.Hub, conn: conn, sessionID: id, send: make(chan []byte, sendBuffer)}
	if initial, err := json.Marshal(toSnapshotDTO(eng.Snapshot())); err == nil {
		client.send <- initial
	}

	select {
	case h.Hub.register <- client:
	case <-h.Hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
