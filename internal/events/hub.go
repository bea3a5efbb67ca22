// Package events is the in-process event bus behind the /events stream and
// the watch TUI.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types.
const (
	TypeRequestReceived  = "request.received"
	TypeRequestCompleted = "request.completed"
	TypeLifecycleState   = "lifecycle.state"
	TypeLifecycleWarning = "lifecycle.warning"
	TypePrefsChanged     = "prefs.changed"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// RequestReceived is published when the dispatcher accepts a request.
type RequestReceived struct {
	TxID   string `json:"txid"`
	Method string `json:"method"`
	Origin string `json:"origin"`
}

// RequestCompleted is published once per request with its outcome. Payload
// fields are never included.
type RequestCompleted struct {
	TxID       string `json:"txid"`
	Method     string `json:"method"`
	Origin     string `json:"origin"`
	IsError    bool   `json:"isError"`
	ErrorStr   string `json:"errorStr,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// LifecycleState carries the configurator state after a configure attempt.
type LifecycleState struct {
	State string `json:"state"`
}

// Warning is a user-visible warning.
type Warning struct {
	Message string `json:"message"`
}

// PrefsChanged names a changed preference. Values are omitted.
type PrefsChanged struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted,omitempty"`
}

const subscriberBuffer = 128

// Hub fans events out to subscribers and keeps the most recent ones for
// clients that connect late.
type Hub struct {
	mu       sync.Mutex
	lastID   int64
	recent   []Event
	capacity int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		recent:   make([]Event, 0, capacity),
		capacity: capacity,
		subs:     make(map[int]chan Event),
	}
}

// Publish records an event. data is JSON encoded; encoding failures publish
// an empty object.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{
		ID:   h.lastID,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	if len(h.recent) == h.capacity {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:len(h.recent)-1]
	}
	h.recent = append(h.recent, ev)

	for _, ch := range h.subs {
		// slow subscribers miss events rather than block publishers
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events and a cancel function that
// closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SnapshotSince returns retained events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.recent))
	for _, ev := range h.recent {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
