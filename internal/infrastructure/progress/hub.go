// Package progress delivers progress events to in-process subscribers.
package progress

import (
	"sync"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

const DefaultBuffer = 64

// Hub fans progress events out to per-session subscribers. Report never
// blocks: an event is dropped for a subscriber whose buffer is full.
type Hub struct {
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.ProgressEvent
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[int]chan domain.ProgressEvent)}
}

// Subscribe registers a subscriber for one session. The returned cancel
// function unregisters it and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan domain.ProgressEvent)
	}
	h.subs[sessionID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if group, ok := h.subs[sessionID]; ok {
				if c, ok := group[id]; ok {
					delete(group, id)
					close(c)
				}
				if len(group) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

func (h *Hub) Report(event domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for session, group := range h.subs {
		for id, ch := range group {
			close(ch)
			delete(group, id)
		}
		delete(h.subs, session)
	}
}

// Multi reports every event to each non-nil reporter in order.
type Multi []ports.ProgressReporter

func (m Multi) Report(event domain.ProgressEvent) {
	for _, r := range m {
		if r != nil {
			r.Report(event)
		}
	}
}

type Nop struct{}

func (Nop) Report(domain.ProgressEvent) {}

// Func adapts a function to ports.ProgressReporter.
type Func func(domain.ProgressEvent)

func (f Func) Report(event domain.ProgressEvent) { f(event) }
