package relay

import (
	"context"
	"sync"

	"github.com/fieldworkshq/surveysync/internal/metrics"
)

const defaultSessionBuffer = 32

// Hub fans change events out to every registered session. Delivery is
// best-effort, at-most-once: each session has a bounded buffer, and an
// event that cannot be buffered is dropped for that session. There is no
// queueing or replay; a session that missed events recovers through the
// full snapshot it receives on reconnect.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[int64]*hubSession
	nextID     int64
	bufferSize int
	metrics    *metrics.Metrics
}

type hubSession struct {
	id     int64
	stream chan Event
}

// NewHub constructs an empty broadcast hub.
func NewHub(recorder *metrics.Metrics) *Hub {
	return &Hub{
		sessions:   make(map[int64]*hubSession),
		bufferSize: defaultSessionBuffer,
		metrics:    recorder,
	}
}

// Register adds a session and returns its event stream together with a
// cleanup function. The stream is also torn down when ctx is cancelled.
func (h *Hub) Register(ctx context.Context) (<-chan Event, func()) {
	session := &hubSession{
		stream: make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	h.nextID++
	session.id = h.nextID
	h.sessions[session.id] = session
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.sessions, session.id)
			h.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return session.stream, cleanup
}

// Publish delivers the event to every registered session, dropping it for
// any session whose buffer is full.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	recipients := make([]*hubSession, 0, len(h.sessions))
	for _, session := range h.sessions {
		recipients = append(recipients, session)
	}
	h.mu.RUnlock()

	for _, session := range recipients {
		select {
		case session.stream <- event:
		default:
			h.metrics.BroadcastDropped()
		}
	}
}

// SessionCount reports the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
