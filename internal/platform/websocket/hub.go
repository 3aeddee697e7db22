// Package websocket is the real-time notification broker. Connections join
// named rooms and receive every event published to those rooms while they
// are connected. Delivery is best effort: no replay, no acknowledgements, and
// a subscriber whose buffer is full misses the frame.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicadental/agenda/internal/platform/auth"
)

// Event types sent to clients.
const (
	EventHorariosUpdated   = "horarios_updated"
	EventNuevaCita         = "nueva_cita"
	EventCitaAsignada      = "cita_asignada"
	EventCitaActualizada   = "cita_actualizada"
	EventCitaCancelada     = "cita_cancelada"
	EventCitaReagendada    = "cita_reagendada"
	EventNuevaCitaAsignada = "nueva_cita_asignada"
	EventCitaCompletada    = "cita_completada"
	EventCitaIniciada      = "cita_iniciada"
	EventError             = "error"
)

// Event is a frame pushed to every connection in Room.
type Event struct {
	Type      string      `json:"type"`
	Room      string      `json:"room"`
	Fecha     string      `json:"fecha,omitempty"`
	CitaID    string      `json:"citaId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Mensaje   string      `json:"mensaje,omitempty"`
}

// ClientMessage is an inbound frame. Either Room or Rooms may be set.
type ClientMessage struct {
	Action string   `json:"action"`
	Room   string   `json:"room,omitempty"`
	Rooms  []string `json:"rooms,omitempty"`
}

func (m ClientMessage) rooms() []string {
	out := make([]string, 0, len(m.Rooms)+1)
	if m.Room != "" {
		out = append(out, m.Room)
	}
	return append(out, m.Rooms...)
}

// EventPublisher defines the interface for publishing events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Metrics receives delivery counters. telemetry.Provider implements it.
type Metrics interface {
	EventPublished(eventType string)
	EventDropped(eventType string)
	ConnectionOpened()
	ConnectionClosed()
}

type noopMetrics struct{}

func (noopMetrics) EventPublished(string) {}
func (noopMetrics) EventDropped(string)   {}
func (noopMetrics) ConnectionOpened()     {}
func (noopMetrics) ConnectionClosed()     {}

// Client represents a single WebSocket connection.
type Client struct {
	ID       string
	Identity Identity
	Send     chan []byte

	// rooms is guarded by the hub's mutex.
	rooms map[string]struct{}
}

// NewClient builds a client with an empty room set and a buffered Send channel.
func NewClient(id Identity, buffer int) *Client {
	return &Client{
		ID:       uuid.New().String(),
		Identity: id,
		Send:     make(chan []byte, buffer),
		rooms:    make(map[string]struct{}),
	}
}

// Hub is the central connection manager that tracks clients and their room
// memberships. All operations are thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{} // room -> set of clients
	all     map[*Client]struct{}
	closed  bool
	auth    Authorizer
	metrics Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

func WithAuthorizer(a Authorizer) Option    { return func(h *Hub) { h.auth = a } }
func WithMetrics(m Metrics) Option          { return func(h *Hub) { h.metrics = m } }
func WithLogger(l zerolog.Logger) Option    { return func(h *Hub) { h.logger = l } }
func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

// NewHub creates a Hub using DefaultAuthorizer unless told otherwise.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		auth:    DefaultAuthorizer,
		metrics: noopMetrics{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client to the hub. A closed hub rejects new clients by
// closing their Send channel immediately.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.rooms == nil {
		client.rooms = make(map[string]struct{})
	}
	if h.closed {
		close(client.Send)
		return
	}
	h.all[client] = struct{}{}
	h.metrics.ConnectionOpened()
}

// Unregister removes a client from the hub and all rooms, and closes the
// client's Send channel. Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	if _, ok := h.all[client]; !ok {
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(h.all, client)
	close(client.Send)
	h.metrics.ConnectionClosed()
}

// Join authorizes and adds client to each room. Joining a room twice has no
// effect. Rooms that fail authorization are returned with their error.
func (h *Hub) Join(client *Client, rooms ...string) map[string]error {
	var rejected map[string]error
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return nil
	}
	for _, room := range rooms {
		room = strings.TrimSpace(room)
		if err := h.auth(client.Identity, room); err != nil {
			if rejected == nil {
				rejected = make(map[string]error)
			}
			rejected[room] = err
			continue
		}
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][client] = struct{}{}
		client.rooms[room] = struct{}{}
	}
	return rejected
}

// Leave removes client from each room. Leaving a room the client is not in
// has no effect.
func (h *Hub) Leave(client *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		h.leaveLocked(client, strings.TrimSpace(room))
	}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// Rooms returns the client's rooms in sorted order.
func (h *Hub) Rooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(client.rooms))
	for r := range client.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ProcessMessage handles an inbound ClientMessage. Rejected joins and unknown
// actions are answered with an error frame to the sender only.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "join":
		for room, err := range h.Join(client, msg.rooms()...) {
			h.sendError(client, room, err.Error())
		}
	case "leave":
		h.Leave(client, msg.rooms()...)
	default:
		h.sendError(client, "", "acción desconocida")
	}
}

func (h *Hub) sendError(client *Client, room, mensaje string) {
	data, err := json.Marshal(Event{
		Type:      EventError,
		Room:      room,
		Timestamp: h.now(),
		Mensaje:   mensaje,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Broadcast sends an event to every client in room and reports how many
// received it. An empty room is a silent no-op.
func (h *Hub) Broadcast(room string, event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	event.Room = room

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("websocket: marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[room] {
		select {
		case client.Send <- data:
			delivered++
		default:
			h.metrics.EventDropped(event.Type)
			h.logger.Warn().Str("client_id", client.ID).Str("room", room).Str("type", event.Type).
				Msg("websocket: client buffer full, frame dropped")
		}
	}
	if delivered > 0 {
		h.metrics.EventPublished(event.Type)
	}
	return delivered
}

// Publish implements EventPublisher by broadcasting to the event's room.
// It never blocks on a slow subscriber.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Room, event)
	return nil
}

// Close disconnects every client and rejects new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.all {
		h.unregisterLocked(client)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ---------------------------------------------------------------------------
// WebSocketHandler: Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// WebSocketHandler handles HTTP-to-WebSocket upgrades and message routing.
type WebSocketHandler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler creates a handler bound to hub. Upgrades are accepted
// from allowedOrigins; an empty list or "*" accepts any origin.
func NewWebSocketHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || origins[origin]
			},
		},
	}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades an authenticated request, registers the client and
// starts its pumps. Rooms listed in ?rooms=a,b are joined right away.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	identity := Identity{
		UserID: auth.UserIDFromContext(ctx),
		Roles:  auth.RolesFromContext(ctx),
	}
	if identity.UserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Token de autenticación requerido")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		wsh.logger.Debug().Err(err).Msg("websocket: upgrade failed")
		return nil
	}

	client := NewClient(identity, sendBuffer)
	wsh.hub.Register(client)
	wsh.logger.Debug().Str("client_id", client.ID).Str("user_id", identity.UserID).Msg("websocket: connected")

	if initial := c.QueryParam("rooms"); initial != "" {
		wsh.hub.ProcessMessage(client, ClientMessage{Action: "join", Rooms: strings.Split(initial, ",")})
	}

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

// readPump reads frames until the connection fails or a pong is overdue.
func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.logger.Debug().Str("client_id", client.ID).Msg("websocket: disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wsh.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket: read")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			wsh.hub.sendError(client, "", "mensaje inválido")
			continue
		}

		wsh.hub.ProcessMessage(client, msg)
	}
}

// writePump drains Send and keeps the connection alive with pings.
func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage,
					gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseGoingAway, ""))
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
