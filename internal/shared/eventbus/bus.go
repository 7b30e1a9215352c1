package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestore-access/internal/shared/logger"
)

// Event types published by the access layer after a mutation reached the store.
const (
	EventTypeDocumentCreated     = "document.created"
	EventTypeDocumentUpdated     = "document.updated"
	EventTypeDocumentDeleted     = "document.deleted"
	EventTypeDocumentHardDeleted = "document.hard_deleted"
)

// MutationEventTypes lists every event type emitted for a document mutation.
var MutationEventTypes = []string{
	EventTypeDocumentCreated,
	EventTypeDocumentUpdated,
	EventTypeDocumentDeleted,
	EventTypeDocumentHardDeleted,
}

// Event represents a generic event
type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// Publisher is the narrow side of the bus handed to producers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus is an in-memory fan-out of events to subscribed handlers.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logger.Logger
	config   BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultBusConfig returns default configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   log.WithComponent("eventbus"),
		config:   config,
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish sends an event to all registered handlers. The first handler
// failing after its retries aborts a synchronous publish.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := append([]Handler(nil), eb.handlers[event.Type()]...)
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}
	if !eb.config.AsyncProcessing {
		for i, h := range handlers {
			if err := eb.execute(ctx, event, h, i); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func(h Handler, idx int) {
			defer wg.Done()
			if err := eb.execute(ctx, event, h, idx); err != nil {
				errCh <- err
			}
		}(h, i)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

func (eb *EventBus) execute(ctx context.Context, event Event, handler Handler, idx int) error {
	var lastErr error
	for attempt := 0; attempt <= eb.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(eb.config.RetryDelay):
			}
		}
		if lastErr = handler(ctx, event); lastErr == nil {
			return nil
		}
		eb.logger.Warnf("handler %d failed for %s (attempt %d): %v", idx, event.Type(), attempt+1, lastErr)
	}
	return fmt.Errorf("handler failed after %d attempts: %w", eb.config.MaxRetries+1, lastErr)
}

// Unsubscribe removes all handlers for a specific event type
func (eb *EventBus) Unsubscribe(eventType string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.handlers, eventType)
}

// GetSubscriberCount returns the number of handlers for an event type
func (eb *EventBus) GetSubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	eventType string
	data      interface{}
	timestamp time.Time
	source    string
}

// NewBasicEventWithSource creates a new basic event with source
func NewBasicEventWithSource(eventType string, data interface{}, source string) Event {
	return &BasicEvent{
		eventType: eventType,
		data:      data,
		timestamp: time.Now(),
		source:    source,
	}
}

func (e *BasicEvent) Type() string         { return e.eventType }
func (e *BasicEvent) Data() interface{}    { return e.data }
func (e *BasicEvent) Timestamp() time.Time { return e.timestamp }
func (e *BasicEvent) Source() string       { return e.source }
