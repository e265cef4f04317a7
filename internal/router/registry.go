// Package router maps webhook service names to registered handlers.
//
// The gateway does not interpret payloads; a handler receives the parsed
// JSON body and returns an opaque result. Dispatch always awaits the handler
// to a single result, and handler faults (errors and panics alike) are
// contained here so one misbehaving integration cannot take down ingestion
// for the rest.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc processes one webhook payload. Handlers may perform I/O and
// should respect ctx for their own deadlines; the gateway never cancels a
// handler just because the caller disconnected.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// ErrUnknownService is returned by Dispatch for unregistered service names.
var ErrUnknownService = fmt.Errorf("unknown service")

// HandlerError wraps a failure inside a handler. The cause is for logs; the
// HTTP layer reports it to callers as an opaque server error.
type HandlerError struct {
	Service string
	Cause   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for service %q failed: %v", e.Service, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Registry holds the service-to-handler table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a service name. Registering an existing name
// replaces the previous handler; last registration wins, which is what makes
// hot reconfiguration possible.
func (r *Registry) Register(service string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[service] = h
}

// Services returns the registered service names, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch invokes the handler registered for service and waits for its
// result. Unknown services return ErrUnknownService; handler errors and
// panics come back as *HandlerError.
func (r *Registry) Dispatch(ctx context.Context, service string, payload json.RawMessage) (result any, err error) {
	r.mu.RLock()
	h, ok := r.handlers[service]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &HandlerError{Service: service, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err := h(ctx, payload)
	if err != nil {
		return nil, &HandlerError{Service: service, Cause: err}
	}
	return out, nil
}
