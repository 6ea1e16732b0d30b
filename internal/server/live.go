package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/code"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
)

// SessionStore keeps the live blocks of rendered pages, keyed by
// sandbox.BlockID. It holds at most max blocks, dropping the least recently
// used, and Expire removes blocks idle for longer than the TTL.
type SessionStore struct {
	ttl    time.Duration
	max    int
	now    func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	blocks *lru[*sandbox.Session]
}

// NewSessionStore creates a store for up to maxSessions blocks. Call Run to
// start expiring idle ones.
func NewSessionStore(ttl time.Duration, maxSessions int, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		ttl:    ttl,
		max:    maxSessions,
		now:    time.Now,
		logger: logger,
		blocks: newLRU[*sandbox.Session](maxSessions),
	}
}

// Add implements code.SessionStore.
func (s *SessionStore) Add(sess *sandbox.Session) {
	s.mu.Lock()
	evicted := s.blocks.add(sess.ID, sess)
	s.mu.Unlock()
	if evicted {
		s.logger.Debug("live block evicted", zap.Int("capacity", s.max))
	}
}

// Get implements code.SessionStore. It marks the block used.
func (s *SessionStore) Get(id string) (*sandbox.Session, bool) {
	s.mu.Lock()
	sess, ok := s.blocks.get(id)
	s.mu.Unlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// Len returns the number of stored blocks.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks.len()
}

// Expire removes blocks idle for longer than the TTL and returns how many
// were removed.
func (s *SessionStore) Expire() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks.removeIf(func(sess *sandbox.Session) bool {
		return now.Sub(sess.LastUsed()) > s.ttl
	})
}

// Run expires idle sessions periodically until ctx is cancelled.
func (s *SessionStore) Run(ctx context.Context) {
	interval := min(s.ttl/2, 5*time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Expire(); n > 0 {
				s.logger.Debug("expired live sessions", zap.Int("removed", n), zap.Int("remaining", s.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// EvalRequest is the JSON body of an edit, over HTTP or WebSocket.
type EvalRequest struct {
	Code string `json:"code"`
	Seq  int    `json:"seq,omitempty"`
}

// EvalResponse is the result of an edit. Seq echoes the request so clients
// can drop stale answers.
type EvalResponse struct {
	Preview string `json:"preview"`
	Error   string `json:"error,omitempty"`
	Seq     int    `json:"seq,omitempty"`
}

// LiveHandler serves edits to live code sessions.
type LiveHandler struct {
	sessions    *SessionStore
	renderer    *code.Renderer
	maxCodeSize int
	logger      *zap.Logger
}

// NewLiveHandler creates a live handler.
func NewLiveHandler(sessions *SessionStore, renderer *code.Renderer, maxCodeSize int, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandler{
		sessions:    sessions,
		renderer:    renderer,
		maxCodeSize: maxCodeSize,
		logger:      logger,
	}
}

var errCodeTooLarge = errors.New("code too large")

// evaluate applies an edit to a per-client session and converts the result
// for the client.
func (h *LiveHandler) evaluate(ctx context.Context, sess *sandbox.Session, req EvalRequest) EvalResponse {
	if len(req.Code) > h.maxCodeSize {
		return EvalResponse{Error: fmt.Sprintf("%v: limit is %d bytes", errCodeTooLarge, h.maxCodeSize), Seq: req.Seq}
	}

	res := sess.Edit(ctx, req.Code)
	if res.Err != nil {
		h.logger.Debug("live evaluation failed",
			zap.String("session", sess.ID),
			zap.String("language", sess.Language),
			zap.Error(res.Err))
	}
	return EvalResponse{
		Preview: string(h.renderer.Preview(res)),
		Error:   res.ErrorText(),
		Seq:     req.Seq,
	}
}

// HandleEval handles POST /live/{session}/eval. Each request evaluates a
// fork of the stored block, so one visitor's edit never changes what others
// are served.
func (h *LiveHandler) HandleEval(w http.ResponseWriter, r *http.Request) {
	block, ok := h.sessions.Get(chi.URLParam(r, "session"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found or expired")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(h.maxCodeSize)+1024))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, errCodeTooLarge.Error())
		return
	}

	var req EvalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	writeJSON(w, http.StatusOK, h.evaluate(r.Context(), block.Fork(), req))
}
