// Package sessionhub fans session presence changes out to listeners. Identity
// providers own one Hub each and feed it from whatever signal their backend
// offers.
package sessionhub

import (
	"sync"
)

// Hub tracks the last known presence and the registered listeners.
//
// Deliveries are serialized: a listener never observes two transitions
// concurrently or out of order. Listeners must not call Set from inside the
// callback.
type Hub struct {
	mu        sync.Mutex
	listeners map[uint64]func(bool)
	nextID    uint64
	present   bool

	deliver sync.Mutex

	onFirst func() error
	onLast  func()
}

// New returns a Hub seeded with present. onFirst runs when the first
// listener subscribes and onLast when the last one leaves; either may be nil.
func New(present bool, onFirst func() error, onLast func()) *Hub {
	return &Hub{
		listeners: make(map[uint64]func(bool)),
		present:   present,
		onFirst:   onFirst,
		onLast:    onLast,
	}
}

// Subscribe registers fn and delivers the current presence to it before
// returning. The returned function removes fn and is safe to call twice.
func (h *Hub) Subscribe(fn func(present bool)) (func(), error) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	first := len(h.listeners) == 0
	h.mu.Unlock()

	if first && h.onFirst != nil {
		if err := h.onFirst(); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	present := h.present
	h.mu.Unlock()

	fn(present)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	if _, ok := h.listeners[id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.listeners, id)
	last := len(h.listeners) == 0
	h.mu.Unlock()

	if last && h.onLast != nil {
		h.onLast()
	}
}

// Set records presence and notifies every listener when it changed.
func (h *Hub) Set(present bool) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if h.present == present {
		h.mu.Unlock()
		return
	}
	h.present = present
	fns := make([]func(bool), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(present)
	}
}

// Listeners reports how many listeners are registered.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
