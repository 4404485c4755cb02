package reactorcore

import (
	"fmt"

	"github.com/cuemby/ridgeback/internal/queue"
)

// EventQueueHandle is a cheap, copyable reference to the reactor's
// scheduler together with a coercion from a component-local event type I
// into the reactor-wide event type O, the Go analogue of the original
// implementation's `From<I> for O` requirement on reactor events. Each
// component is handed an EventQueueHandle[ItsEventType, ReactorEvent] so it
// can self-schedule follow-up events without knowing about any sibling
// component's event type.
type EventQueueHandle[I, O any] struct {
	scheduler *queue.Scheduler[QueueKind, O]
	coerce    func(I) O
}

// NewEventQueueHandle builds a handle over scheduler using coerce to lift
// component-local events into reactor events.
func NewEventQueueHandle[I, O any](scheduler *queue.Scheduler[QueueKind, O], coerce func(I) O) EventQueueHandle[I, O] {
	return EventQueueHandle[I, O]{scheduler: scheduler, coerce: coerce}
}

// Schedule coerces event and pushes it onto kind's queue.
func (h EventQueueHandle[I, O]) Schedule(event I, kind QueueKind) error {
	if h.scheduler == nil {
		return fmt.Errorf("reactorcore: event queue handle has no scheduler")
	}
	return h.scheduler.Push(h.coerce(event), kind)
}

// Retype produces a handle for a different component-local event type J
// over the same underlying scheduler, composing a new coercion on top of
// this handle's. This is how a sub-component's handle is derived from its
// parent's without re-threading the scheduler pointer.
func Retype[J, I, O any](h EventQueueHandle[I, O], lift func(J) I) EventQueueHandle[J, O] {
	return EventQueueHandle[J, O]{
		scheduler: h.scheduler,
		coerce: func(j J) O {
			return h.coerce(lift(j))
		},
	}
}
