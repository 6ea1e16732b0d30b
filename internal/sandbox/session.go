package sandbox

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Session is the state of one live code block: its current source and the
// result of evaluating it. Each edit re-evaluates the code.
type Session struct {
	ID       string
	Language string

	evaluator Evaluator
	noInline  bool

	mu       sync.Mutex
	code     string
	result   Result
	lastUsed time.Time
}

// NewSession creates a session seeded with code. It is not evaluated until
// Run or Edit is called.
func NewSession(e Evaluator, language, code string, noInline bool) *Session {
	return &Session{
		ID:        newSessionID(),
		Language:  language,
		evaluator: e,
		noInline:  noInline,
		code:      code,
		lastUsed:  time.Now(),
	}
}

// NewBlockSession creates a session whose ID is BlockID(language, code), so
// rendering the same block again finds the same session.
func NewBlockSession(e Evaluator, language, code string, noInline bool) *Session {
	s := NewSession(e, language, code, noInline)
	s.ID = BlockID(language, code)
	return s
}

// BlockID identifies a code block by its language and source.
func BlockID(language, code string) string {
	sum := sha256.Sum256([]byte(language + "\x00" + code))
	return "b" + hex.EncodeToString(sum[:12])
}

// Fork returns an unevaluated session with a fresh ID seeded with the current
// code. Edits to the fork leave s untouched.
func (s *Session) Fork() *Session {
	return NewSession(s.evaluator, s.Language, s.Code(), s.noInline)
}

// Run evaluates the current code.
func (s *Session) Run(ctx context.Context) Result {
	s.mu.Lock()
	code := s.code
	s.mu.Unlock()
	return s.evaluate(ctx, code)
}

// Edit replaces the code and re-evaluates it.
func (s *Session) Edit(ctx context.Context, code string) Result {
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
	return s.evaluate(ctx, code)
}

func (s *Session) evaluate(ctx context.Context, code string) Result {
	res := s.evaluator.Evaluate(ctx, Program{
		Language: s.Language,
		Code:     code,
		NoInline: s.noInline,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	// a slower evaluation of older code must not overwrite a newer edit
	if s.code == code {
		s.result = res
	}
	s.lastUsed = time.Now()
	return res
}

// Code returns the current source.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Result returns the result of the last evaluation.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last edited or touched.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func newSessionID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))[:24]
	}
	return hex.EncodeToString(b)
}
