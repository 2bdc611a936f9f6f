package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// progressInterval bounds how often in-flight updates of one kind are pushed.
// Phase transitions are always pushed.
const progressInterval = 500 * time.Millisecond

const writeTimeout = 5 * time.Second

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Snapshot is sent to each client on connect
type Snapshot struct {
	ServerInstanceID string                  `json:"server_instance_id"`
	Scans            []*models.ScanStatus    `json:"scans"`
	Batch            *models.BatchTaskStatus `json:"batch,omitempty"`
}

// WebSocketHandler streams scan and batch status changes to connected clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	store            *status.Store
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	throttleMu       sync.Mutex
	throttles        map[string]*rate.Limiter // per status kind
	lastPhase        map[string]string
	unsubscribe      func()
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, store *status.Store, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		store:            store,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		throttles:        make(map[string]*rate.Limiter),
		lastPhase:        make(map[string]string),
		serverInstanceID: uuid.New().String(),
	}

	if eventService != nil {
		unsubscribe, err := eventService.Subscribe(interfaces.EventStatusChanged, h.handleStatusChanged)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe WebSocket handler to status changes")
		} else {
			h.unsubscribe = unsubscribe
		}
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades the connection, sends a snapshot and keeps the client registered until it disconnects
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendSnapshot(r.Context(), conn, mutex)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, mutex *sync.Mutex) {
	snapshot := Snapshot{ServerInstanceID: h.serverInstanceID}
	if h.store != nil {
		for _, scanType := range models.ScanTypes {
			st, err := h.store.GetScan(ctx, scanType)
			if err != nil {
				h.logger.Warn().Err(err).Str("scan_type", string(scanType)).Msg("Failed to load scan status for snapshot")
				continue
			}
			snapshot.Scans = append(snapshot.Scans, st)
		}
		if b, err := h.store.GetBatch(ctx); err == nil {
			snapshot.Batch = b
		}
	}

	data, err := json.Marshal(WSMessage{Type: "snapshot", Payload: snapshot})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal status snapshot")
		return
	}
	h.write(conn, mutex, data)
}

func (h *WebSocketHandler) handleStatusChanged(ctx context.Context, event interfaces.Event) error {
	change, ok := event.Payload.(models.StatusChange)
	if !ok {
		return nil
	}
	if !h.allow(change) {
		return nil
	}
	h.Broadcast(WSMessage{Type: "status", Payload: change})
	return nil
}

// allow passes phase transitions and throttles repeated updates within one phase
func (h *WebSocketHandler) allow(change models.StatusChange) bool {
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()

	limiter, ok := h.throttles[change.Kind]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(progressInterval), 1)
		h.throttles[change.Kind] = limiter
	}

	if h.lastPhase[change.Kind] != change.Phase {
		h.lastPhase[change.Kind] = change.Phase
		limiter.Allow()
		return true
	}
	return limiter.Allow()
}

// Broadcast sends msg to every connected client
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.write(conn, mutexes[i], data)
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) {
	mutex.Lock()
	defer mutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send WebSocket message")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from status changes and disconnects every client
func (h *WebSocketHandler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, mutex := range h.clients {
		mutex.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}
