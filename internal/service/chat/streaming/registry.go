package streaming

import (
	"context"
	"sync"
	"time"
)

// Registry manages all active Session instances.
//
// Design:
//   - One session per agent run (keyed by session ID)
//   - Thread-safe access via RWMutex
//   - Background cleanup removes settled sessions after a retention period
//     so late re-attaching clients can still replay the stream
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	cleanupInterval time.Duration
	retentionPeriod time.Duration

	// Tracking for cleanup
	settledTimes map[string]time.Time
	timesMu      sync.RWMutex
}

// NewRegistry creates a new session registry.
func NewRegistry(cleanupInterval, retentionPeriod time.Duration) *Registry {
	return &Registry{
		sessions:        make(map[string]*Session),
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		settledTimes:    make(map[string]time.Time),
	}
}

// Register registers a session under the given ID.
// Returns false if a session already exists for this ID.
func (r *Registry) Register(id string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return false
	}

	r.sessions[id] = session
	return true
}

// Get retrieves the session for an ID.
// Returns nil if no session exists.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[id]
}

// Remove removes a session from the registry.
// Safe to call even if the session doesn't exist.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)

	r.timesMu.Lock()
	delete(r.settledTimes, id)
	r.timesMu.Unlock()
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// StartCleanup starts the background cleanup loop.
// Removes settled sessions after retentionPeriod.
func (r *Registry) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup removes sessions that settled longer than retentionPeriod ago.
func (r *Registry) cleanup() {
	now := time.Now()

	var toRemove []string

	r.mu.RLock()
	for id, session := range r.sessions {
		if !session.Settled() {
			continue
		}

		r.timesMu.RLock()
		settledAt, exists := r.settledTimes[id]
		r.timesMu.RUnlock()

		if exists && now.Sub(settledAt) > r.retentionPeriod {
			toRemove = append(toRemove, id)
		} else if !exists {
			// First time we observe this session settled, start the clock
			r.timesMu.Lock()
			r.settledTimes[id] = now
			r.timesMu.Unlock()
		}
	}
	r.mu.RUnlock()

	if len(toRemove) > 0 {
		r.mu.Lock()
		for _, id := range toRemove {
			delete(r.sessions, id)
		}
		r.mu.Unlock()

		r.timesMu.Lock()
		for _, id := range toRemove {
			delete(r.settledTimes, id)
		}
		r.timesMu.Unlock()
	}
}
