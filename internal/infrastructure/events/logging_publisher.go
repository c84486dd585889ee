package events

import (
	"context"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/flowtest/internal/ports"
)

// LoggingPublisher emits domain events using the structured logger, one
// structured entry per event, fanning out to any subscribers registered
// for that event's type afterward.
type LoggingPublisher struct {
	logger ports.Logger
	subs   map[string][]subscriptionEntry
	nextID int
	mu     sync.RWMutex
}

// eventMessages gives each lifecycle event (internal/ports/events.go) its
// own log line instead of a single generic "domain event" message, so a
// log stream reads as a run narrative rather than an undifferentiated
// event dump.
var eventMessages = map[string]string{
	ports.EventExecutionStart: "execution started",
	ports.EventTestDiscovered: "suite discovered",
	ports.EventSuiteStart:     "suite started",
	ports.EventStepStart:      "step started",
	ports.EventStepEnd:        "step finished",
	ports.EventSuiteEnd:       "suite finished",
	ports.EventError:          "run error",
	ports.EventExecutionEnd:   "execution finished",
}

// failedStatuses are the status values (from a step/suite event payload's
// "status" field) that bump that event's log level from info to warn.
var failedStatuses = map[string]bool{
	"failed":  true,
	"failure": true,
	"skipped": true,
}

// NewLoggingPublisher creates an event publisher that writes each event as a structured log entry.
func NewLoggingPublisher(logger ports.Logger) *LoggingPublisher {
	return &LoggingPublisher{
		logger: logger,
		subs:   make(map[string][]subscriptionEntry),
	}
}

// Publish renders the event as a structured log entry.
func (p *LoggingPublisher) Publish(ctx context.Context, event ports.DomainEvent) error {
	if p == nil || p.logger == nil || event == nil {
		return nil
	}

	p.mu.RLock()
	handlers := append([]subscriptionEntry(nil), p.subs[event.EventType()]...)
	p.mu.RUnlock()

	fields := []interface{}{"event_type", event.EventType()}
	failed := false
	switch payload := event.Payload().(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(payload))
		for key := range payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fields = append(fields, key, payload[key])
		}
		if status, ok := payload["status"].(string); ok && failedStatuses[status] {
			failed = true
		}
	case nil:
	default:
		fields = append(fields, "payload", payload)
	}

	message := eventMessages[event.EventType()]
	if message == "" {
		message = "domain event"
	}

	if event.EventType() == ports.EventError || failed {
		p.logger.Warn(ctx, message, fields...)
	} else {
		p.logger.Info(ctx, message, fields...)
	}

	for _, entry := range handlers {
		handler := entry.handler
		if handler == nil {
			continue
		}
		if err := handler(ctx, event); err != nil {
			p.logger.Warn(ctx, "event handler failed", "event_type", event.EventType(), "error", err)
		}
	}

	return nil
}

// Subscribe registers a handler for the provided event type.
func (p *LoggingPublisher) Subscribe(eventType string, handler ports.EventHandler) (ports.Subscription, error) {
	if p == nil || handler == nil {
		return noopSubscription{}, nil
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[eventType] = append(p.subs[eventType], subscriptionEntry{id: id, handler: handler})
	p.mu.Unlock()

	return subscription{
		cancel: func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			handlers := p.subs[eventType]
			for i, entry := range handlers {
				if entry.id == id {
					p.subs[eventType] = append(handlers[:i], handlers[i+1:]...)
					break
				}
			}
		},
	}, nil
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	cancel func()
}

func (s subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriptionEntry struct {
	id      int
	handler ports.EventHandler
}
