package core

import (
	"sort"
	"sync"
)

// Unsubscribe detaches a listener. Safe to call more than once.
type Unsubscribe func()

// emitter is the in-process publish/subscribe primitive behind the registry
// and store change events. Listeners run synchronously on the publishing
// goroutine in subscription order.
type emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(T)
}

func newEmitter[T any]() *emitter[T] {
	return &emitter[T]{listeners: make(map[int]func(T))}
}

func (e *emitter[T]) Subscribe(fn func(T)) Unsubscribe {
	if e == nil || fn == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *emitter[T]) Emit(event T) {
	if e == nil {
		return
	}
	e.mu.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	// Deterministic dispatch: subscription order.
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}
