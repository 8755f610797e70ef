package session

import (
	"sync"
	"time"

	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
)

// channelBuffer bounds how many undelivered events a slow observer may
// accumulate before publishes start dropping.
const channelBuffer = 64

// Broadcaster is a process-wide table mapping a session id to one
// outbound event channel. Delivery is best-effort and at-most-once:
// the batch HTTP response is the durable fallback, so a missing or
// broken channel never affects the batch outcome.
type Broadcaster struct {
	mu       sync.Mutex
	channels map[string]chan domain.ProgressEvent
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{channels: make(map[string]chan domain.ProgressEvent)}
}

// Attach registers a new outbound channel for the session, replacing
// and closing any previous one. The caller (the SSE handler) owns the
// returned channel: it must drain it, send keep-alive pings on its own
// interval, and call Detach when the observer disconnects.
func (b *Broadcaster) Attach(sessionID string) <-chan domain.ProgressEvent {
	ch := make(chan domain.ProgressEvent, channelBuffer)

	b.mu.Lock()
	if old, ok := b.channels[sessionID]; ok {
		close(old)
	}
	b.channels[sessionID] = ch
	b.mu.Unlock()

	logger.GetDefault().WithField("session_id", sessionID).Debug("Progress channel attached")
	return ch
}

// Publish stamps the event and delivers it to the session's channel.
// If no channel is registered the event is logged and dropped. If the
// channel's buffer is full the observer is considered stale: the
// registration is removed and the channel closed so the handler side
// unwinds. Publish never blocks and never returns an error by
// contract; progress delivery is advisory.
func (b *Broadcaster) Publish(sessionID string, event domain.ProgressEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = sessionID
	}

	b.mu.Lock()
	ch, ok := b.channels[sessionID]
	if !ok {
		b.mu.Unlock()
		logger.GetDefault().WithFields(logger.Fields{
			"session_id": sessionID,
			"event_type": string(event.Type),
		}).Debug("No progress channel for session, dropping event")
		return
	}

	select {
	case ch <- event:
		b.mu.Unlock()
	default:
		// Observer stopped draining; evict the stale registration.
		delete(b.channels, sessionID)
		close(ch)
		b.mu.Unlock()
		logger.GetDefault().WithFields(logger.Fields{
			"session_id": sessionID,
			"event_type": string(event.Type),
		}).Warn("Progress channel full, removed stale registration")
	}
}

// Detach removes the session's channel registration and closes the
// channel. Idempotent; detaching an unknown session is a no-op. A
// channel replaced by a newer Attach is left untouched.
func (b *Broadcaster) Detach(sessionID string, ch <-chan domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.channels[sessionID]
	if !ok {
		return
	}
	if ch != nil && current != ch {
		return
	}
	delete(b.channels, sessionID)
	close(current)
}

// Attached reports whether the session currently has an observer.
func (b *Broadcaster) Attached(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.channels[sessionID]
	return ok
}
