package handler

import (
	"context"
	"fmt"
	"sync"
)

// Handler performs one kind of command.
type Handler interface {
	// Name identifies the handler in logs.
	Name() string
	// Accepts reports whether the handler is responsible for action.
	Accepts(action string) bool
	// Handle executes the command. Implementations must tolerate the same
	// command being delivered more than once.
	Handle(ctx context.Context, data map[string]any) error
}

// Logger defines the logging interface used by the Registry and handlers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry routes messages to handlers.
//
// Handlers are consulted in registration order and the first that accepts an
// action gets it. Dispatch holds a lock for the whole handler call, so no two
// handlers ever run at the same time.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	handlers []Handler
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register appends h. Earlier registrations take priority.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
	r.logger.Debug("handler registered", "handler", h.Name(), "priority", len(r.handlers))
}

// Handlers returns the registered handler names in priority order.
func (r *Registry) Handlers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch runs msg through the first handler that accepts its action.
//
// Returns:
//   - nil: the handler completed
//   - ErrUnroutable: no handler accepts the action (message should be dropped)
//   - ErrHandlerFailed: the handler returned an error or panicked
func (r *Registry) Dispatch(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.handlers {
		if !h.Accepts(msg.Action) {
			continue
		}

		r.logger.Debug("dispatching message", "action", msg.Action, "handler", h.Name())
		if err := r.invoke(ctx, h, msg); err != nil {
			r.logger.Debug("handler failed", "action", msg.Action, "handler", h.Name(), "error", err)
			return err
		}
		return nil
	}

	r.logger.Warn("no handler for action, dropping message", "action", msg.Action)
	return fmt.Errorf("%w: %q", ErrUnroutable, msg.Action)
}

// invoke calls h, converting a panic into ErrHandlerFailed.
func (r *Registry) invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrHandlerFailed, h.Name(), p)
		}
	}()

	if err := h.Handle(ctx, msg.Data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHandlerFailed, h.Name(), err)
	}
	return nil
}
