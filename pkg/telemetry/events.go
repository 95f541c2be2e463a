package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a progress notification emitted during a planning run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the planning run the event belongs to.
	RunID string `json:"run_id,omitempty"`

	// Generation is the round number, zero for run-level events.
	Generation int `json:"generation,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types published by the planner.
const (
	EventTypePlanStarted    = "plan.started"
	EventTypeRoundCompleted = "round.completed"
	EventTypePlanCompleted  = "plan.completed"
	EventTypePlanTimedOut   = "plan.timed_out"
	EventTypePlanFailed     = "plan.failed"
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

// EventPublisher fans planning events out to subscribers. Subscribers are
// called one at a time, in publication order.
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
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
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
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

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

// PublishPlanStarted publishes a plan started event.
func (ep *EventPublisher) PublishPlanStarted(runID string, strategies int) error {
	return ep.Publish(Event{
		Type:    EventTypePlanStarted,
		Source:  "planner",
		RunID:   runID,
		Message: fmt.Sprintf("Planning run %s started with %d strategies", runID, strategies),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"strategies": strategies,
		},
	})
}

// PublishRoundCompleted publishes a round completed event.
func (ep *EventPublisher) PublishRoundCompleted(runID string, generation, survivors, population, resolved int) error {
	return ep.Publish(Event{
		Type:       EventTypeRoundCompleted,
		Source:     "planner",
		RunID:      runID,
		Generation: generation,
		Message:    fmt.Sprintf("Round %d produced %d survivors", generation, survivors),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"survivors":  survivors,
			"population": population,
			"resolved":   resolved,
		},
	})
}

// PublishPlanCompleted publishes a plan completed event.
func (ep *EventPublisher) PublishPlanCompleted(runID string, generations, resolved int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventTypePlanCompleted,
		Source:     "planner",
		RunID:      runID,
		Generation: generations,
		Message:    fmt.Sprintf("Planning run %s resolved %d recipes", runID, resolved),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"resolved": resolved,
			"duration": duration.Seconds(),
		},
	})
}

// PublishPlanTimedOut publishes a plan timed out event.
func (ep *EventPublisher) PublishPlanTimedOut(runID string, generations, resolved int) error {
	return ep.Publish(Event{
		Type:       EventTypePlanTimedOut,
		Source:     "planner",
		RunID:      runID,
		Generation: generations,
		Message:    fmt.Sprintf("Planning run %s timed out after %d rounds", runID, generations),
		Level:      EventLevelWarning,
		Data: map[string]interface{}{
			"resolved": resolved,
		},
	})
}

// PublishPlanFailed publishes a plan failed event.
func (ep *EventPublisher) PublishPlanFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePlanFailed,
		Source:  "planner",
		RunID:   runID,
		Message: fmt.Sprintf("Planning run %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events in batches, flushing a partial batch
// every FlushInterval.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-tick:
			ep.flushBatch(batch)
			batch = batch[:0]

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering every buffered event.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
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

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
