package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"kart-race/internal/race"
)

const (
	writeWait      = 2 * time.Second
	maxMessageSize = 4 << 10
)

// HubConfig bounds the WebSocket relay.
type HubConfig struct {
	MaxConnections    int           // Total concurrent connections
	MaxPerIP          int           // Concurrent connections per IP
	AllowedOrigins    []string      // Browser origins; "*" allows any
	BroadcastInterval time.Duration // race:state cadence
	InboundRate       float64       // Messages per second per connection
	InboundBurst      int
}

// DefaultHubConfig returns production defaults: 10 Hz state broadcasts and
// room for a peer sending 60 Hz snapshots plus actions.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections:    64,
		MaxPerIP:          8,
		BroadcastInterval: 100 * time.Millisecond,
		InboundRate:       90,
		InboundBurst:      120,
	}
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn    *websocket.Conn
	ip      string
	limiter *rate.Limiter
}

// inboundMessage is what remote peers send. Exactly one payload field is
// used, selected by Type.
type inboundMessage struct {
	Type      string               `json:"type"`
	VehicleID string               `json:"vehicleId"`
	Action    string               `json:"action,omitempty"`
	Snapshot  *race.RemoteSnapshot `json:"snapshot,omitempty"`
	Input     *race.Input          `json:"input,omitempty"`
}

var errBadMessage = errors.New("bad message")

// WebSocketHub relays remote vehicle snapshots and actions into the engine
// and broadcasts race state to every client.
type WebSocketHub struct {
	engine   EngineInterface
	config   HubConfig
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	connLimiter *ConnLimiter
	done        chan struct{}
	stopOnce    sync.Once
}

// NewWebSocketHub creates a hub. No goroutines start until Run.
func NewWebSocketHub(engine EngineInterface, cfg HubConfig) *WebSocketHub {
	def := DefaultHubConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = def.InboundRate
		cfg.InboundBurst = def.InboundBurst
	}

	h := &WebSocketHub{
		engine:      engine,
		config:      cfg,
		clients:     make(map[*websocket.Conn]*wsClient),
		broadcast:   make(chan []byte, 64),
		register:    make(chan *wsClient),
		unregister:  make(chan *websocket.Conn),
		connLimiter: NewConnLimiter(cfg.MaxPerIP),
		done:        make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.allowedOrigin(origin) {
				return true
			}
			log.Warn().Str("origin", origin).Msg("⚠️ WebSocket connection rejected by origin")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// allowedOrigin accepts non-browser peers (no Origin), localhost on any
// port and the configured origins.
func (h *WebSocketHub) allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run owns the client set and every write to a connection. It returns
// after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Info().Str("ip", client.ip).Int("total", count).Msg("📱 Client connected")
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(conn)
			count := len(h.clients)
			h.mu.Unlock()

			log.Info().Int("remaining", count).Msg("📱 Client disconnected")
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.removeLocked(conn)
				}
			}
			UpdateWSConnections(len(h.clients))
			h.mu.Unlock()
			IncrementWSMessages()
		}
	}
}

func (h *WebSocketHub) removeLocked(conn *websocket.Conn) {
	if client, ok := h.clients[conn]; ok {
		h.connLimiter.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		h.removeLocked(conn)
	}
	h.mu.Unlock()
	UpdateWSConnections(0)
}

// Stop closes every connection and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends an event to all connected clients
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	jsonBytes, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("❌ Broadcast encode failed")
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop publishes race:state at the configured cadence. A
// snapshot already sent is not sent again.
func (h *WebSocketHub) StartBroadcastLoop() {
	ticker := time.NewTicker(h.config.BroadcastInterval)

	go func() {
		defer ticker.Stop()
		var lastSeq uint64
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 {
				continue
			}
			snap := h.engine.Snapshot()
			if snap == nil || snap.Sequence == lastSeq {
				continue
			}
			lastSeq = snap.Sequence
			h.Broadcast("race:state", snap)
		}
	}()
}

// HandleWebSocket upgrades a connection with DoS protection and reads
// peer messages until it closes.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= h.config.MaxConnections {
		log.Warn().Int("total", total).Msg("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.connLimiter.Acquire(ip) {
		log.Warn().Str("ip", ip).Msg("⚠️ WebSocket connection rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("WebSocket upgrade failed")
		h.connLimiter.Release(ip)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &wsClient{
		conn:    conn,
		ip:      ip,
		limiter: rate.NewLimiter(rate.Limit(h.config.InboundRate), h.config.InboundBurst),
	}
	select {
	case h.register <- client:
	case <-h.done:
		h.connLimiter.Release(ip)
		conn.Close()
		return
	}

	go h.readLoop(client)
}

func (h *WebSocketHub) readLoop(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client.conn:
		case <-h.done:
		}
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if !client.limiter.Allow() {
			continue
		}
		if err := h.handleMessage(message); err != nil {
			RecordWSInbound("invalid")
			log.Debug().Err(err).Str("ip", client.ip).Msg("⚠️ WebSocket message rejected")
		}
	}
}

// handleMessage turns one peer message into an engine command.
func (h *WebSocketHub) handleMessage(data []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}

	cmd := race.Command{VehicleID: msg.VehicleID}
	switch msg.Type {
	case "snapshot":
		if msg.Snapshot == nil || msg.VehicleID == "" {
			return fmt.Errorf("%w: snapshot needs vehicleId and snapshot", errBadMessage)
		}
		if !finiteSnapshot(*msg.Snapshot) {
			return fmt.Errorf("%w: non-finite snapshot", errBadMessage)
		}
		cmd.Kind = race.CommandRemoteSnapshot
		cmd.Snapshot = *msg.Snapshot

	case "action":
		action, err := race.ParseAction(msg.Action)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadMessage, err)
		}
		if msg.VehicleID == "" {
			return fmt.Errorf("%w: action needs vehicleId", errBadMessage)
		}
		cmd.Kind = race.CommandAction
		cmd.Action = action

	case "input":
		if msg.Input == nil {
			return fmt.Errorf("%w: input missing", errBadMessage)
		}
		cmd.Kind = race.CommandInput
		cmd.Input = *msg.Input

	default:
		return fmt.Errorf("%w: unknown type %q", errBadMessage, msg.Type)
	}

	RecordWSInbound(msg.Type)
	return h.engine.Submit(cmd)
}

func finiteSnapshot(s race.RemoteSnapshot) bool {
	vals := []float64{s.Heading, s.Steer}
	vals = append(vals, s.Position[:]...)
	vals = append(vals, s.Velocity[:]...)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
