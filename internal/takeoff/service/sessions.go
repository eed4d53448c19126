package service

import (
	"sync"

	"takeoff-engine/internal/takeoff/calibration"

	"github.com/google/uuid"
)

// ============================================================
// Calibration Session Manager
// ============================================================

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*calibration.Session // token -> session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*calibration.Session),
	}
}

// Open создаёт сессию и выдаёт токен для последующих шагов.
func (m *SessionManager) Open(orthoSnap bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	m.sessions[token] = calibration.NewSession(orthoSnap)
	return token
}

func (m *SessionManager) Get(token string) (*calibration.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	return s, ok
}

// Close отменяет и удаляет сессию (Cancel или успешный commit).
func (m *SessionManager) Close(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[token]; ok {
		s.Cancel()
		delete(m.sessions, token)
	}
}
