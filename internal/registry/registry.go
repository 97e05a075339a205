// Package registry tracks the single live session per irrigation area.
package registry

import (
	"log/slog"
	"sync"
)

// Session is one live bidirectional connection bound to an area. Send must
// not block: implementations queue or drop.
type Session interface {
	// ID identifies the session for logs.
	ID() string
	// Send queues a payload for delivery. It returns an error when the
	// session cannot accept the payload (closed, or outbox full).
	Send(payload any) error
}

// Registry is a thread-safe area -> session map. It holds at most one
// session per area; registering replaces any previous entry.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Session
}

// New constructs an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

// Register binds a session to an area, replacing any prior session for that
// area. The replaced session, if any, is returned so the caller can close it.
func (r *Registry) Register(area string, s Session) Session {
	r.mu.Lock()
	prev := r.sessions[area]
	r.sessions[area] = s
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info("session superseded", "area", area, "old", prev.ID(), "new", s.ID())
	} else {
		r.logger.Info("session registered", "area", area, "session", s.ID())
	}
	return prev
}

// Unregister removes the mapping for an area, but only when the registered
// session is exactly the one presented. A late close of a superseded session
// must not evict its replacement.
func (r *Registry) Unregister(area string, s Session) {
	r.mu.Lock()
	removed := false
	if current, ok := r.sessions[area]; ok && current == s {
		delete(r.sessions, area)
		removed = true
	}
	r.mu.Unlock()

	if removed {
		r.logger.Info("session unregistered", "area", area, "session", s.ID())
	}
}

// Lookup returns the live session for an area, or nil.
func (r *Registry) Lookup(area string) Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[area]
}

// Send delivers a payload to the area's session, best effort. It reports
// whether the payload was accepted; absence of a session or a full outbox
// is a silent drop, never an error for the caller.
func (r *Registry) Send(area string, payload any) bool {
	r.mu.RLock()
	s := r.sessions[area]
	r.mu.RUnlock()

	if s == nil {
		r.logger.Debug("no session for area, dropping payload", "area", area)
		return false
	}

	if err := s.Send(payload); err != nil {
		r.logger.Debug("send to session failed", "area", area, "session", s.ID(), "error", err)
		return false
	}
	return true
}
