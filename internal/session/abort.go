package session

import (
	"sync"

	"github.com/mirae/stylegen/internal/logger"
)

// AbortRegistry is a process-wide table of session cancellation flags.
// The abort handler sets a flag; the batch orchestrator polls it
// between jobs and between relay prompts. Entries are never expired
// on their own: the orchestrator must Clear on every terminal path.
type AbortRegistry struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewAbortRegistry creates an empty registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{flags: make(map[string]bool)}
}

// RequestAbort marks the session as should-abort. Idempotent; unknown
// session ids are simply recorded.
func (r *AbortRegistry) RequestAbort(sessionID string) {
	r.mu.Lock()
	r.flags[sessionID] = true
	r.mu.Unlock()
	logger.GetDefault().WithField("session_id", sessionID).Info("Abort requested")
}

// ShouldAbort returns the current flag value. Unknown ids return false.
func (r *AbortRegistry) ShouldAbort(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[sessionID]
}

// Clear removes the entry for the session. Idempotent.
func (r *AbortRegistry) Clear(sessionID string) {
	r.mu.Lock()
	delete(r.flags, sessionID)
	r.mu.Unlock()
}

// Len returns the number of live entries. Used by tests and the
// health endpoint.
func (r *AbortRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flags)
}
