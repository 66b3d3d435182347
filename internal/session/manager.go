package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// Manager owns all live sessions. Lookup applies lazy expiry, so a session
// past its idle or absolute lifetime is gone the moment anyone asks for it,
// independent of the background sweep.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
	maxAge   time.Duration
}

// NewManager builds a session manager with the given lifetimes. A zero
// duration disables the corresponding limit.
func NewManager(idleTTL, maxAge time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		maxAge:   maxAge,
	}
}

// Create registers a new session around an open warehouse connection and
// returns it with a fresh opaque handle.
func (m *Manager) Create(conn warehouse.Conn, identity warehouse.Identity) *Session {
	s := newSession(newHandle(), conn, identity)
	m.mu.Lock()
	m.sessions[s.Handle] = s
	m.mu.Unlock()
	log.Info().Str("user", identity.User).Str("role", identity.Role).Msg("session created")
	return s
}

// Get returns the live session for a handle and refreshes its idle clock.
// Expired or unknown handles yield SESSION_NOT_FOUND; an expired session's
// connection is released on the way out.
func (m *Manager) Get(handle string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[handle]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.SessionNotFound()
	}
	if s.Expired(time.Now(), m.idleTTL, m.maxAge) {
		m.Remove(handle)
		return nil, apperrors.SessionNotFound()
	}
	s.Touch()
	return s, nil
}

// Remove deletes a session and releases its connection. Returns false when
// the handle is unknown.
func (m *Manager) Remove(handle string) bool {
	m.mu.Lock()
	s, ok := m.sessions[handle]
	if ok {
		delete(m.sessions, handle)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close warehouse connection")
	}
	return true
}

// Sweep removes every expired session and returns how many were dropped.
func (m *Manager) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	var expired []*Session
	for handle, s := range m.sessions {
		if s.Expired(now, m.idleTTL, m.maxAge) {
			delete(m.sessions, handle)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close warehouse connection")
		}
	}
	return len(expired)
}

// Count returns the number of registered sessions, expired ones included
// until the next sweep or lookup.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SessionStats is one session's activity snapshot. Handles are deliberately
// not included.
type SessionStats struct {
	User        string  `json:"user"`
	Role        string  `json:"role"`
	IdleSeconds float64 `json:"idleSeconds"`
	AgeSeconds  float64 `json:"ageSeconds"`
	Queries     int     `json:"queries"`
	Accesses    int     `json:"accesses"`
}

// Stats is the manager-wide operational snapshot.
type Stats struct {
	Active   int            `json:"active"`
	Sessions []SessionStats `json:"sessions"`
}

// Stats reports the active session count and per-session activity counters.
func (m *Manager) Stats() Stats {
	now := time.Now()
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	stats := Stats{Active: len(sessions), Sessions: make([]SessionStats, 0, len(sessions))}
	for _, s := range sessions {
		identity := s.Identity()
		stats.Sessions = append(stats.Sessions, SessionStats{
			User:        identity.User,
			Role:        identity.Role,
			IdleSeconds: now.Sub(s.LastUsed()).Seconds(),
			AgeSeconds:  now.Sub(s.CreatedAt).Seconds(),
			Queries:     s.Queries(),
			Accesses:    s.Accesses(),
		})
	}
	return stats
}

// Close releases every session. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}

// newHandle generates an opaque 256-bit session handle.
func newHandle() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
