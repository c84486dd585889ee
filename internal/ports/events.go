package ports

import "context"

const (
	// EventExecutionStart names the start of a run, before suite discovery/scheduling; nothing in this module publishes it.
	EventExecutionStart = "execution.start"
	// EventTestDiscovered names one suite found during discovery; nothing in this module publishes it.
	EventTestDiscovered = "test.discovered"
	// EventSuiteStart is emitted when a suite transitions to executing.
	EventSuiteStart = "suite.start"
	// EventStepStart is emitted before a step begins dispatch.
	EventStepStart = "step.start"
	// EventStepEnd is emitted after a step (and its hooks) finish, regardless of outcome.
	EventStepEnd = "step.end"
	// EventSuiteEnd is emitted when a suite reaches a terminal status.
	EventSuiteEnd = "suite.end"
	// EventError names a non-fatal error surfaced during a run; nothing in this module publishes it.
	EventError = "run.error"
	// EventExecutionEnd names the end of a run, after every scheduled suite has resolved; nothing in this module publishes it.
	EventExecutionEnd = "execution.end"
)

// DomainEvent represents one occurrence in a flowtest run. Subscribers use
// events for reporting (console/JSON/JUnit renderers) and integrations; the
// core engine never depends on subscriber state.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// EventPublisher distributes lifecycle events to interested subscribers.
// Dispatch is synchronous: Publish blocks until all handlers run, so a
// renderer observes events in execution order. Implementations must be
// thread-safe since suites execute concurrently (spec §4.2).
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes one event. Handlers should avoid panicking;
// failures are logged by the publisher and do not stop delivery to the
// remaining subscribers.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler. Callers must invoke
// Unsubscribe to stop receiving events and release resources.
type Subscription interface {
	Unsubscribe()
}
