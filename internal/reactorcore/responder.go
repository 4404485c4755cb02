package reactorcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrResponderDropped is surfaced to a waiter when the request it sent was
// discarded without ever being answered (e.g. the owning component shut
// down mid-flight). It is a distinct failure from a delivered value,
// mirroring the original implementation's one-shot channel semantics.
var ErrResponderDropped = errors.New("reactorcore: responder dropped without a value")

type responderMsg[T any] struct {
	value T
	err   error
}

// Responder is the receiving half of a single-shot, at-most-once reply
// channel. Request events carry the paired respond function, which the
// component that handles the request calls; the requester keeps the
// Responder and awaits it. ID correlates the
// request and its eventual reply (or drop) across log lines, since the two
// sides of a request run in different goroutines with no other shared
// context.
type Responder[T any] struct {
	ID uuid.UUID
	ch chan responderMsg[T]
}

// NewResponder creates a Responder together with the two functions that
// fulfil or discard it. Calling either function more than once, or calling
// both, has no further effect after the first call: the channel has
// capacity one, so only the first send is observed by Await.
func NewResponder[T any]() (responder Responder[T], respond func(T), drop func()) {
	ch := make(chan responderMsg[T], 1)
	responder = Responder[T]{ID: uuid.New(), ch: ch}
	respond = func(v T) {
		select {
		case ch <- responderMsg[T]{value: v}:
		default:
		}
	}
	drop = func() {
		select {
		case ch <- responderMsg[T]{err: ErrResponderDropped}:
		default:
		}
	}
	return responder, respond, drop
}

// Await blocks until the responder is fulfilled, dropped, or ctx is
// canceled, whichever happens first.
func (r Responder[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg := <-r.ch:
		if msg.err != nil {
			return zero, msg.err
		}
		return msg.value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
