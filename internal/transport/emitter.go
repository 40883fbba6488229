package transport

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw data payload of one inbound event.
type Handler func(data json.RawMessage)

// Emitter is a named-event dispatcher. Components mount and unmount handlers
// independently, so both single-handler and whole-event removal are supported.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string]map[int]Handler),
	}
}

// On registers a handler and returns its subscription id for later removal.
func (e *Emitter) On(event string, fn Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]Handler)
	}
	e.handlers[event][e.nextID] = fn
	return e.nextID
}

// Off removes a single handler.
func (e *Emitter) Off(event string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if handlers, ok := e.handlers[event]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(e.handlers, event)
		}
	}
}

// OffAll removes every handler registered for the event.
func (e *Emitter) OffAll(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.handlers, event)
}

// Dispatch invokes every handler registered for the event.
func (e *Emitter) Dispatch(event string, data json.RawMessage) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[event]))
	for _, fn := range e.handlers[event] {
		handlers = append(handlers, fn)
	}
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(data)
	}
}

// HandlerCount returns the number of handlers registered for the event.
func (e *Emitter) HandlerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
