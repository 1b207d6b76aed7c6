package app

import (
	"sort"
	"sync"
	"time"
)

// ClientSession describes one connected MCP client.
type ClientSession struct {
	ID           string    `json:"id"`
	Client       string    `json:"client,omitempty"`
	Connected    time.Time `json:"connected"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionRegistry tracks connected MCP client sessions (stdio and Streamable
// HTTP) and when each last called a tool.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
	now      func() time.Time
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ClientSession),
		now:      time.Now,
	}
}

// Add registers a session. Adding a known session only refreshes its activity.
func (r *SessionRegistry) Add(sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivity = now
		return
	}
	r.sessions[sessionID] = &ClientSession{ID: sessionID, Connected: now, LastActivity: now}
}

// SetClient records the client name announced during initialize. Unknown
// sessions are registered on the way.
func (r *SessionRegistry) SetClient(sessionID, client string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		now := r.now()
		s = &ClientSession{ID: sessionID, Connected: now, LastActivity: now}
		r.sessions[sessionID] = s
	}
	s.Client = client
}

// Touch records activity for a session (call on each tool invocation).
func (r *SessionRegistry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivity = r.now()
	}
}

// Remove unregisters a session (e.g. on disconnect).
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Count returns the number of connected sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns copies of the connected sessions, oldest connection first.
func (r *SessionRegistry) Sessions() []ClientSession {
	r.mu.RLock()
	out := make([]ClientSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Connected.Equal(out[j].Connected) {
			return out[i].ID < out[j].ID
		}
		return out[i].Connected.Before(out[j].Connected)
	})
	return out
}
