package reactorcore

import (
	"context"
	"math/rand"

	"github.com/cuemby/ridgeback/internal/rlog"
)

// Effect is a deferred, asynchronously-resolved action. The reactor driver
// runs it in its own goroutine and re-injects whatever events it returns
// back into the scheduler. This is the Go rendering of the original
// implementation's `BoxFuture<'static, Multiple<Event>>`.
type Effect[O any] func(ctx context.Context) []O

// Effects is the unordered multiset of effects returned from a single
// Component.HandleEvent or Reactor.DispatchEvent call.
type Effects[O any] []Effect[O]

// Immediately wraps events that are already available, with no
// asynchronous wait, for handlers that want to re-inject follow-up events
// synchronously.
func Immediately[O any](events ...O) Effect[O] {
	return func(ctx context.Context) []O { return events }
}

// NoEffects is the empty effect set, returned by handlers with nothing to
// schedule.
func NoEffects[O any]() Effects[O] { return nil }

// EffectBuilder is the cheap, copyable handle components use to construct
// requests, announcements, and timers as effects instead of touching the
// scheduler directly. It embeds an EventQueueHandle with the identity
// coercion, since effects produced here are already expressed in the
// reactor-wide event type.
type EffectBuilder[O any] struct {
	handle EventQueueHandle[O, O]
}

// NewEffectBuilder wraps handle, an identity-coercion handle over the
// reactor's scheduler, to build an EffectBuilder for the reactor-wide event
// type O.
func NewEffectBuilder[O any](handle EventQueueHandle[O, O]) EffectBuilder[O] {
	return EffectBuilder[O]{handle: handle}
}

// EventQueue exposes the underlying handle, letting a component derive a
// differently-typed handle for itself via Retype.
func (eb EffectBuilder[O]) EventQueue() EventQueueHandle[O, O] {
	return eb.handle
}

// Schedule builds an effect that unconditionally places event on kind's
// queue once run. Used for fire-and-forget announcements.
func (eb EffectBuilder[O]) Schedule(event O, kind QueueKind) Effect[O] {
	return func(ctx context.Context) []O {
		_ = eb.handle.Schedule(event, kind)
		return nil
	}
}

// MakeRequest builds an effect that schedules reqEvent under kind, awaits
// resp, and converts a successful reply into follow-up events via then. If
// the responder is dropped or ctx is canceled, onFailure (if non-nil)
// produces the follow-up events instead; a nil onFailure means the request
// is discarded silently, matching a best-effort announcement.
func MakeRequest[O any, T any](eb EffectBuilder[O], reqEvent O, kind QueueKind, resp Responder[T], then func(T) []O, onFailure func(error) []O) Effect[O] {
	return func(ctx context.Context) []O {
		if err := eb.handle.Schedule(reqEvent, kind); err != nil {
			if onFailure != nil {
				return onFailure(err)
			}
			return nil
		}
		v, err := resp.Await(ctx)
		if err != nil {
			rlog.WithComponent("reactorcore").Debug().Str("request_id", resp.ID.String()).Err(err).Msg("request did not resolve")
			if onFailure != nil {
				return onFailure(err)
			}
			return nil
		}
		return then(v)
	}
}

// WrapEffects lifts a component-local Effects[I] into the reactor-wide
// Effects[O] using wrap, the Go analogue of the original implementation's
// `wrap_effects` helper used when a reactor routes an event to a named
// sub-component.
func WrapEffects[I, O any](wrap func(I) O, effects Effects[I]) Effects[O] {
	if effects == nil {
		return nil
	}
	out := make(Effects[O], len(effects))
	for i, e := range effects {
		e := e
		out[i] = func(ctx context.Context) []O {
			inner := e(ctx)
			wrapped := make([]O, len(inner))
			for j, ie := range inner {
				wrapped[j] = wrap(ie)
			}
			return wrapped
		}
	}
	return out
}

// Component is the contract every reactor sub-component satisfies:
// HandleEvent consumes one component-local event and returns the effects
// it wants run. rng is threaded explicitly, following the original
// implementation's requirement that components never seed their own
// randomness, so reactor-level tests can supply a deterministic source.
type Component[O any, E any] interface {
	HandleEvent(eb EffectBuilder[O], rng *rand.Rand, event E) Effects[O]
}
