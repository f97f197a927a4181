package sim

import (
	"log"
	"reflect"
)

// EventLogger is a hook that prints every event an engine handles.
type EventLogger struct {
	logger *log.Logger
}

// NewEventLogger returns an EventLogger that writes into logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Func prints the event before it is handled.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	target := "-"
	if named, ok := evt.Handler().(Named); ok {
		target = named.Name()
	}

	kind := reflect.TypeOf(evt)
	if kind.Kind() == reflect.Ptr {
		kind = kind.Elem()
	}

	h.logger.Printf("%.4f %s -> %s", evt.Time(), kind.Name(), target)
}
