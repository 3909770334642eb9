package identity

import (
	"context"
	"sync"

	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

// Hub fans auth events out to the listeners of one session id.
// Listeners run on the publishing goroutine, outside the hub lock, in
// subscription order.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]Listener
	order  map[string][]uint64
}

func NewHub() *Hub {
	return &Hub{
		subs:  make(map[string]map[uint64]Listener),
		order: make(map[string][]uint64),
	}
}

// Subscribe registers l for sessionID. The returned func is idempotent.
func (h *Hub) Subscribe(sessionID string, l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[uint64]Listener)
	}
	h.subs[sessionID][id] = l
	h.order[sessionID] = append(h.order[sessionID], id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sessionID, id) })
	}
}

func (h *Hub) remove(sessionID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sessionID], id)
	ids := h.order[sessionID]
	for i, v := range ids {
		if v == id {
			h.order[sessionID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
		delete(h.order, sessionID)
	}
}

// Publish delivers the event to the current listeners of sessionID.
func (h *Hub) Publish(_ context.Context, sessionID string, event Event, sess *session.Session) error {
	h.Deliver(sessionID, event, sess)
	return nil
}

// Deliver is Publish without the Publisher signature.
func (h *Hub) Deliver(sessionID string, event Event, sess *session.Session) {
	h.mu.Lock()
	ids := h.order[sessionID]
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, h.subs[sessionID][id])
	}
	h.mu.Unlock()

	for _, l := range listeners {
		var s *session.Session
		if sess != nil {
			cp := *sess
			s = &cp
		}
		l(event, s)
	}
}
