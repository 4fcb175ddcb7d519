package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a provider lifecycle or call event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// InstanceID is the provider instance the event belongs to.
	InstanceID string `json:"instance_id,omitempty"`

	// Facade is the facade involved, if any.
	Facade string `json:"facade,omitempty"`

	// Operation is the facade operation involved, if any.
	Operation string `json:"operation,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for provider events.
const (
	EventTypeInstanceBuilt      = "instance.built"
	EventTypeInstanceDestroying = "instance.destroying"
	EventTypeInstanceDestroyed  = "instance.destroyed"
	EventTypeFacadeBound        = "facade.bound"
	EventTypeCallFailed         = "call.failed"
	EventTypeReinitialized      = "instance.reinitialized"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions. A nil
// *EventPublisher accepts and drops every event.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
// Synchronous publishers deliver on the publishing goroutine; asynchronous
// ones deliver in order from a single background goroutine.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishInstanceBuilt publishes an instance built event.
func (ep *EventPublisher) PublishInstanceBuilt(instanceID, name string, workers int) error {
	return ep.Publish(Event{
		Type:       EventTypeInstanceBuilt,
		Source:     "provider",
		InstanceID: instanceID,
		Message:    fmt.Sprintf("Instance %s built with %d workers", name, workers),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"instance_name": name,
			"workers":       workers,
		},
	})
}

// PublishInstanceDestroying publishes an event when destruction begins.
func (ep *EventPublisher) PublishInstanceDestroying(instanceID string) error {
	return ep.Publish(Event{
		Type:       EventTypeInstanceDestroying,
		Source:     "provider",
		InstanceID: instanceID,
		Message:    fmt.Sprintf("Instance %s destroying", instanceID),
		Level:      EventLevelInfo,
	})
}

// PublishInstanceDestroyed publishes an instance destroyed event. teardownErr
// is the joined facade teardown error, if any.
func (ep *EventPublisher) PublishInstanceDestroyed(instanceID string, duration time.Duration, teardownErr error) error {
	event := Event{
		Type:       EventTypeInstanceDestroyed,
		Source:     "provider",
		InstanceID: instanceID,
		Message:    fmt.Sprintf("Instance %s destroyed", instanceID),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	}
	if teardownErr != nil {
		event.Level = EventLevelWarning
		event.Message = fmt.Sprintf("Instance %s destroyed with teardown errors", instanceID)
		event.Data["error"] = teardownErr.Error()
	}
	return ep.Publish(event)
}

// PublishFacadeBound publishes a facade bound event.
func (ep *EventPublisher) PublishFacadeBound(instanceID, facade string) error {
	return ep.Publish(Event{
		Type:       EventTypeFacadeBound,
		Source:     "provider",
		InstanceID: instanceID,
		Facade:     facade,
		Message:    fmt.Sprintf("Facade %s bound", facade),
		Level:      EventLevelInfo,
	})
}

// PublishCallFailed publishes a failed facade call.
func (ep *EventPublisher) PublishCallFailed(instanceID, facade, operation, kind string, err error) error {
	return ep.Publish(Event{
		Type:       EventTypeCallFailed,
		Source:     "provider",
		InstanceID: instanceID,
		Facade:     facade,
		Operation:  operation,
		Message:    fmt.Sprintf("%s.%s failed: %v", facade, operation, err),
		Level:      EventLevelError,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishReinitialized publishes a configuration switch.
func (ep *EventPublisher) PublishReinitialized(instanceID string, configID int64) error {
	return ep.Publish(Event{
		Type:       EventTypeReinitialized,
		Source:     "provider",
		InstanceID: instanceID,
		Message:    fmt.Sprintf("Instance %s reinitialized with config %d", instanceID, configID),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"config_id": configID,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-tick:
			flush()

		case <-ep.ctx.Done():
			// Drain what is already buffered before shutting down
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers in
// subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher, delivering buffered
// events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

