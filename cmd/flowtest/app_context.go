package main

import (
	"context"

	"github.com/spf13/cobra"

	eventsinfra "github.com/alexisbeaulieu97/flowtest/internal/infrastructure/events"
	logginginfra "github.com/alexisbeaulieu97/flowtest/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/flowtest/internal/ports"
)

// AppContext bundles long-lived services created at startup. Logger starts
// out backed by an EventBuffer (buffer non-nil) so lines emitted before
// command-line flags are parsed (and thus before the real log level is
// known) aren't lost; Activate swaps in the flag-configured logger and
// replays anything buffered up to that point.
type AppContext struct {
	Logger    ports.Logger
	Publisher ports.EventPublisher
	buffer    *logginginfra.EventBuffer
}

// NewBufferedAppContext returns an AppContext whose Logger records entries
// into an in-memory buffer until Activate installs the real one.
func NewBufferedAppContext() *AppContext {
	buffer := logginginfra.NewEventBuffer(0)
	return &AppContext{
		Logger: logginginfra.NewBufferedLogger(buffer),
		buffer: buffer,
	}
}

// Activate installs logger as the application's logger, replaying any
// entries recorded while the buffered logger was in effect, and builds a
// matching event publisher on top of it.
func (a *AppContext) Activate(logger ports.Logger) {
	if a.buffer != nil {
		a.buffer.Flush(logger)
		a.buffer = nil
	}
	a.Logger = logger
	a.Publisher = eventsinfra.NewLoggingPublisher(logger.With("component", "event_publisher"))
}

// CommandContext returns the command context (falling back to Background)
// together with a component-scoped logger.
func (a *AppContext) CommandContext(cmd *cobra.Command, component string) (context.Context, ports.Logger) {
	ctx := context.Background()
	if cmd != nil && cmd.Context() != nil {
		ctx = cmd.Context()
	}
	return ctx, a.LoggerFor(component)
}

// LoggerFor derives a child logger with the supplied component name.
func (a *AppContext) LoggerFor(component string) ports.Logger {
	if a == nil || a.Logger == nil {
		return nil
	}
	return a.Logger.With("component", component)
}
