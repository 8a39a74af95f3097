// Package sessions tracks client sessions for the streamable HTTP
// transport. A session is an opaque handle correlating requests after
// initialize; it carries no identifying data beyond its random id.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates the session id is unknown or has expired.
var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultIdleTTL is how long a session survives without activity.
	DefaultIdleTTL = time.Hour
	// DefaultSweepInterval is how often expired sessions are collected.
	DefaultSweepInterval = 5 * time.Minute
)

// Session is the server-side handle for one client conversation.
type Session struct {
	ID             string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Manager owns the session map. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	log           *slog.Logger
	now           func() time.Time
	idleTTL       time.Duration
	sweepInterval time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the time source. Tests use this to simulate idle expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIdleTTL overrides the idle lifetime.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) { m.idleTTL = d }
}

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// NewManager builds a Manager. Call Run to start the expiry sweep.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		log:           slog.Default(),
		now:           time.Now,
		idleTTL:       DefaultIdleTTL,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate is invoked only for the initialize method. A supplied id that
// still exists is refreshed and reused; otherwise a fresh session is
// created. The second return reports whether the session is new.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	now := m.now()

	if id != "" {
		m.mu.Lock()
		if s, ok := m.sessions[id]; ok && !m.expired(s, now) {
			s.LastActivityAt = now
			cp := *s
			m.mu.Unlock()
			return &cp, false
		}
		m.mu.Unlock()
	}

	s := &Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("session.create", slog.String("session_id", s.ID))
	cp := *s
	return &cp, true
}

// Touch refreshes a session's activity timestamp. Unknown or expired ids
// yield ErrSessionNotFound; a request is never silently given a session.
func (m *Manager) Touch(id string) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if m.expired(s, now) {
		delete(m.sessions, id)
		return ErrSessionNotFound
	}
	s.LastActivityAt = now
	return nil
}

// Terminate deletes a session. Deleting an unknown id is itself an error.
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.log.Info("session.terminate", slog.String("session_id", id))
	return nil
}

// Len reports the number of live sessions. Intended for tests and metrics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run executes the expiry sweep until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep removes sessions idle for longer than the TTL.
func (m *Manager) Sweep() {
	now := m.now()
	removed := 0

	m.mu.Lock()
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.log.Info("session.sweep", slog.Int("removed", removed))
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivityAt) > m.idleTTL
}
