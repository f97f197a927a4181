package sim

// VTimeInSec is a point in virtual time, in seconds.
type VTimeInSec float64

// An Event is something that happens to a Handler at a point in virtual time.
type Event interface {
	Time() VTimeInSec
	Handler() Handler

	// IsSecondary tells if the event waits until all the primary events of
	// the same time are handled.
	IsSecondary() bool
}

// EventBase provides the fields and getters that events share. Events embed
// a *EventBase and add their payload.
type EventBase struct {
	ID        string
	time      VTimeInSec
	handler   Handler
	secondary bool
}

// NewEventBase creates a primary event base.
func NewEventBase(t VTimeInSec, handler Handler) *EventBase {
	return &EventBase{
		ID:      GetIDGenerator().Generate(),
		time:    t,
		handler: handler,
	}
}

// NewSecondaryEventBase creates the base of an event that runs after the
// primary events of the same time.
func NewSecondaryEventBase(t VTimeInSec, handler Handler) *EventBase {
	e := NewEventBase(t, handler)
	e.secondary = true

	return e
}

// Time returns the time at which the event happens.
func (e EventBase) Time() VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// IsSecondary returns true if the event is a secondary event.
func (e EventBase) IsSecondary() bool {
	return e.secondary
}

// A Handler owns the events it schedules. Handling an event may only change
// the state of its handler.
type Handler interface {
	Handle(e Event) error
}
