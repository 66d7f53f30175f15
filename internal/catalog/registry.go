package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Invocation carries the identity of the request a handler runs under.
type Invocation struct {
	RequestID string
	UserID    string
}

// Handler is one invocable unit. Implementations return the result document
// or an error; the kernel persists whichever it gets.
type Handler interface {
	Handle(ctx context.Context, inv Invocation, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation, payload json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, inv Invocation, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, inv, payload)
}

// Registry maps handler locator strings to handlers. It is populated at
// process start; no dynamic loading happens at invoke time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a locator to a handler. Re-registering a locator replaces
// the previous binding.
func (r *Registry) Register(locator string, h Handler) error {
	if locator == "" {
		return fmt.Errorf("handler locator is empty")
	}
	if h == nil {
		return fmt.Errorf("handler is nil")
	}
	r.mu.Lock()
	r.handlers[locator] = h
	r.mu.Unlock()
	return nil
}

// Lookup returns the handler bound to locator.
func (r *Registry) Lookup(locator string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[locator]
	r.mu.RUnlock()
	return h, ok
}

// Locators returns all registered locators, sorted.
func (r *Registry) Locators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
