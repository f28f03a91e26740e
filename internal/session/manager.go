package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/archimedes/internal/model"
)

// ErrNotFound is returned for an unknown or replaced session id.
var ErrNotFound = errors.New("session not found")

// Manager holds the single current session. Starting a new one abandons
// the previous attempt if it is still in progress.
type Manager struct {
	recorder Recorder
	opts     Options

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager that records results through rec.
func NewManager(rec Recorder, opts Options) *Manager {
	return &Manager{recorder: rec, opts: opts.withDefaults()}
}

// Start begins a new attempt at test for the given user.
func (m *Manager) Start(ctx context.Context, test model.MockTest, userID int64) (*Session, error) {
	if len(test.Questions) == 0 {
		return nil, ErrEmptyTest
	}
	s := newSession(ctx, uuid.NewString(), test, userID, m.recorder, m.opts)

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev != nil {
		prev.abandon()
		slog.Info("replaced session", "previous_id", prev.ID(), "session_id", s.ID())
	}
	slog.Info("started session", "session_id", s.ID(), "test_id", test.ID, "duration", m.opts.Duration)
	return s, nil
}

// Get returns the current session if its id matches.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID() != id {
		return nil, ErrNotFound
	}
	return m.current, nil
}

// Close abandons the current session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s != nil {
		s.abandon()
	}
}
