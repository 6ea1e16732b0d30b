package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/livetemplate/tinkerblog/internal/sandbox"
)

// writeWait bounds a single WebSocket write.
const writeWait = 5 * time.Second

// The zero CheckOrigin only accepts same-origin browsers.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// LiveSocket serves GET /live/ws?session=ID: every text message is an
// EvalRequest, answered with an EvalResponse. The connection edits its own
// fork of the block, created on the first edit.
type LiveSocket struct {
	live  *LiveHandler
	rps   float64
	burst int
}

// NewLiveSocket creates the live WebSocket handler. Messages on one
// connection are limited to rps with the given burst.
func NewLiveSocket(live *LiveHandler, rps float64, burst int) *LiveSocket {
	return &LiveSocket{live: live, rps: rps, burst: burst}
}

// ServeHTTP implements http.Handler.
func (h *LiveSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	block, ok := h.live.sessions.Get(id)
	if !ok {
		http.Error(w, "Session not found or expired", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.live.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.live.logger.With(zap.String("block", block.ID))
	logger.Debug("live client connected", zap.String("remote", conn.RemoteAddr().String()))

	conn.SetReadLimit(int64(h.live.maxCodeSize) + 1024)
	limiter := rate.NewLimiter(rate.Limit(h.rps), h.burst)
	var sess *sandbox.Session

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("unexpected websocket close", zap.Error(err))
			}
			break
		}

		var req EvalRequest
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Debug("invalid live message", zap.Error(err))
			continue
		}

		var resp EvalResponse
		if limiter.Allow() {
			if sess == nil {
				sess = block.Fork()
			}
			block.Touch()
			resp = h.live.evaluate(r.Context(), sess, req)
		} else {
			resp = EvalResponse{Error: "rate limit exceeded", Seq: req.Seq}
		}

		if err := writeMessage(conn, resp); err != nil {
			logger.Debug("failed to send live result", zap.Error(err))
			break
		}
	}

	logger.Debug("live client disconnected")
}

func writeMessage(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReloadMessage tells browsers to reload after a file changed.
type ReloadMessage struct {
	Action   string `json:"action"`
	FilePath string `json:"filePath"`
}

// ReloadHub tracks hot reload connections and broadcasts to them.
type ReloadHub struct {
	logger *zap.Logger

	mu          sync.Mutex
	connections map[*websocket.Conn]bool
}

// NewReloadHub creates an empty hub.
func NewReloadHub(logger *zap.Logger) *ReloadHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReloadHub{
		logger:      logger,
		connections: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.register(conn)
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	// Clients never send anything; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ReloadHub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = true
	h.logger.Debug("reload connection registered", zap.Int("active", len(h.connections)))
}

func (h *ReloadHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
	h.logger.Debug("reload connection unregistered", zap.Int("active", len(h.connections)))
}

// Len returns the number of connected clients.
func (h *ReloadHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Broadcast sends a reload message for filePath to every client.
func (h *ReloadHub) Broadcast(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.connections) == 0 {
		return
	}

	h.logger.Info("broadcasting reload",
		zap.String("file", filePath),
		zap.Int("connections", len(h.connections)))

	msg := ReloadMessage{Action: "reload", FilePath: filePath}
	for conn := range h.connections {
		if err := writeMessage(conn, msg); err != nil {
			h.logger.Debug("failed to send reload", zap.Error(err))
		}
	}
}
