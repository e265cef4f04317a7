// Package events is an in-process pub/sub feed of admission decisions.
// It backs the /api/events SSE endpoint and the watch TUI. Publishing never
// blocks the request pipeline; slow subscribers lose events instead.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Admission event types.
const (
	TypeProcessed    = "admission.processed"
	TypeRejected     = "admission.rejected"
	TypeHandlerFault = "admission.handler_fault"
)

// Admission is the published record of one gateway decision. It carries the
// decision itself and nothing secret: no signature material, no credentials,
// no other callers' counters. Identifier is the redacted form (a key digest
// prefix for keyed callers, the client IP otherwise), never a raw API key.
type Admission struct {
	RequestID  string `json:"request_id"`
	Service    string `json:"service"`
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Status     int    `json:"status"`
	Code       string `json:"code,omitempty"`
	Remaining  int    `json:"remaining"`
	DurationMS int64  `json:"duration_ms"`
}

// Event is one hub entry; Data is JSON.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"`
}

// Hub fans events out to subscribers and keeps a ring buffer for late
// clients reconnecting with Last-Event-ID.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

// NewHub creates a hub buffering up to capacity past events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish broadcasts an event. Marshal failures degrade to an empty object;
// admission must never fail because observability did.
func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a listener. The returned cancel must be called to
// release the subscription; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// lastID 0 returns the whole buffer.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
