package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager holds the live sessions and reaps the idle ones.
type Manager struct {
	deps Deps
	idle time.Duration

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewManager(deps Deps, idle time.Duration) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		idle:     idle,
		sessions: make(map[string]*Controller),
	}
}

func (m *Manager) Create(caps Capabilities) *Controller {
	id := uuid.NewString()
	c := NewController(id, caps, m.deps)

	m.mu.Lock()
	m.sessions[id] = c
	m.mu.Unlock()

	m.deps.Logger.Info("session created", "session_id", id,
		"speech_recognition", caps.SpeechRecognition, "microphone", caps.Microphone, "speech_synthesis", caps.SpeechSynthesis)
	return c
}

func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	c.Close()
	m.deps.Logger.Info("session closed", "session_id", id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes every session not used since now minus the idle timeout.
func (m *Manager) Reap(now time.Time) int {
	var stale []*Controller
	m.mu.Lock()
	for id, c := range m.sessions {
		if now.Sub(c.LastSeen()) > m.idle {
			stale = append(stale, c)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range stale {
		c.Close()
		m.deps.Logger.Info("session reaped", slog.String("session_id", c.ID()))
	}
	return len(stale)
}

func (m *Manager) Run(ctx context.Context) {
	interval := m.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}
