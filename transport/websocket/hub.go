package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
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
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Connections are token-authenticated before the upgrade, so
		// cross-origin pages without a token gain nothing here.
		return true
	},
}

// Message is the frame pushed to connected clients. Exactly one of View and
// Snapshot is set, depending on the receiving client's role.
type Message struct {
	SessionID string              `json:"session_id"`
	Event     string              `json:"event"`
	View      *engine.LearnerView `json:"view,omitempty"`
	Snapshot  *engine.Snapshot    `json:"snapshot,omitempty"`
}

// update carries both role projections of one state change through the hub.
type update struct {
	sessionID string
	view      *engine.LearnerView
	snapshot  *engine.Snapshot
}

// Client is one WebSocket connection bound to a session and role.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	role      engine.Role
}

// Hub maintains the set of active clients and pushes role-scoped session
// updates to them. All session map access happens on the Run goroutine.
type Hub struct {
	// Registered clients by session ID.
	sessions map[string]map[*Client]bool

	broadcast  chan *update
	register   chan *Client
	unregister chan *Client

	logger zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *update, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case u := <-h.broadcast:
			h.broadcastUpdate(u)
		}
	}
}

// ServeWS upgrades an already-authenticated request and attaches the client
// to its session under the given role.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, role engine.Role) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
		role:      role,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// BroadcastToSession pushes a state change to every client of the session.
// Each client receives only its role's projection: learners the view,
// examiners the full snapshot.
func (h *Hub) BroadcastToSession(sessionID string, view *engine.LearnerView, snap *engine.Snapshot) {
	h.broadcast <- &update{sessionID: sessionID, view: view, snapshot: snap}
}

func (h *Hub) registerClient(client *Client) {
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true

	h.logger.Debug().
		Str("session_id", client.sessionID).
		Str("role", string(client.role)).
		Int("clients", len(h.sessions[client.sessionID])).
		Msg("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	h.logger.Debug().
		Str("session_id", client.sessionID).
		Int("clients", len(clients)).
		Msg("client unregistered")
}

func (h *Hub) broadcastUpdate(u *update) {
	clients, ok := h.sessions[u.sessionID]
	if !ok {
		return
	}

	// Marshal each role's frame once, not per client.
	var learnerFrame, examinerFrame []byte
	var err error
	if u.view != nil {
		learnerFrame, err = json.Marshal(&Message{
			SessionID: u.sessionID,
			Event:     "state_update",
			View:      u.view,
		})
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal learner frame")
			return
		}
	}
	if u.snapshot != nil {
		examinerFrame, err = json.Marshal(&Message{
			SessionID: u.sessionID,
			Event:     "state_update",
			Snapshot:  u.snapshot,
		})
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal examiner frame")
			return
		}
	}

	for client := range clients {
		frame := learnerFrame
		if client.role == engine.RoleExaminer {
			frame = examinerFrame
		}
		if frame == nil {
			continue
		}
		select {
		case client.send <- frame:
		default:
			// Client's send channel is full, drop the connection.
			h.unregisterClient(client)
		}
	}
}

// readPump discards incoming frames and keeps the connection alive. Clients
// drive the session through the HTTP API, not the socket.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
