package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const tokenBytes = 32

// SessionManager is the set of active session tokens. Holding a token in
// the set is the only thing that makes it valid.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create issues a new URL-safe token and records it.
func (m *SessionManager) Create() (Session, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	s := Session{
		Token:    base64.RawURLEncoding.EncodeToString(buf),
		IssuedAt: m.now().UTC(),
	}
	m.mu.Lock()
	m.sessions[s.Token] = s.IssuedAt
	m.mu.Unlock()
	return s, nil
}

func (m *SessionManager) Valid(token string) bool {
	if token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[token]
	return ok
}

// Destroy removes token and reports whether it was active.
func (m *SessionManager) Destroy(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return false
	}
	delete(m.sessions, token)
	return true
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
