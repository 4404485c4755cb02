package reactorcore

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/queue"
)

func TestResponderDeliversValueOnce(t *testing.T) {
	resp, respond, _ := NewResponder[int]()
	respond(7)
	respond(8) // ignored: channel already holds a value

	v, err := resp.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestResponderDroppedSurfacesDistinctError(t *testing.T) {
	resp, _, drop := NewResponder[int]()
	drop()

	_, err := resp.Await(context.Background())
	assert.ErrorIs(t, err, ErrResponderDropped)
}

func TestResponderAwaitRespectsContext(t *testing.T) {
	resp, _, _ := NewResponder[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resp.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrapEffectsLiftsProducedEvents(t *testing.T) {
	inner := Effects[string]{
		Immediately("a", "b"),
		Immediately("c"),
	}
	wrapped := WrapEffects(func(s string) int { return len(s) }, inner)
	require.Len(t, wrapped, 2)

	var got []int
	for _, e := range wrapped {
		got = append(got, e(context.Background())...)
	}
	assert.ElementsMatch(t, []int{1, 1, 1}, got)
}

// echoReactor dispatches an incoming int event by doubling it and
// re-scheduling the result, until it sees the sentinel value -1, at which
// point it reports itself stopped. It exists only to exercise Driver.Run.
type echoReactor struct {
	stopped bool
	seen    []int
}

func (r *echoReactor) DispatchEvent(eb EffectBuilder[int], rng *rand.Rand, event int) Effects[int] {
	if event == -1 {
		r.stopped = true
		return nil
	}
	r.seen = append(r.seen, event)
	return Effects[int]{Immediately(event * 2)}
}

func (r *echoReactor) IsStopped() bool           { return r.stopped }
func (r *echoReactor) StoppedSuccessfully() bool { return r.stopped }

func TestDriverRunDispatchesAndReinjectsEffects(t *testing.T) {
	reactor := &echoReactor{}
	driver := NewDriver[int]("echo", []queue.Weight[QueueKind]{
		{Kind: QueueRegular, Weight: 1},
	}, reactor, 1)

	require.NoError(t, driver.Schedule(21, QueueRegular))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Give the doubled event a moment to land, then stop the reactor.
		time.Sleep(50 * time.Millisecond)
		_ = driver.Schedule(-1, QueueRegular)
	}()

	ok, err := driver.Run(ctx)
	<-done
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, reactor.seen, 21)
	assert.Contains(t, reactor.seen, 42)
}
