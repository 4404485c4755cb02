package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kind int

const (
	kindOne kind = iota
	kindTwo
)

func TestSchedulerRespectsWeighting(t *testing.T) {
	s := New[kind, rune]([]Weight[kind]{
		{Kind: kindOne, Weight: 1},
		{Kind: kindTwo, Weight: 2},
	})

	require.NoError(t, s.Push('a', kindOne))
	require.NoError(t, s.Push('b', kindOne))
	require.NoError(t, s.Push('c', kindOne))
	require.NoError(t, s.Push('d', kindTwo))
	require.NoError(t, s.Push('e', kindTwo))
	require.NoError(t, s.Push('f', kindTwo))

	ctx := context.Background()
	want := []rune{'a', 'd', 'e', 'b', 'f', 'c'}
	for _, w := range want {
		item, _, err := s.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, w, item)
	}
	assert.Equal(t, 0, s.ItemCount())
}

func TestSchedulerStarvationFree(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{
		{Kind: kindOne, Weight: 1},
		{Kind: kindTwo, Weight: 100},
	})

	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Push(i, kindOne))
	}
	require.NoError(t, s.Push(-1, kindTwo))

	ctx := context.Background()
	found := -2
	for i := 0; i < 101; i++ {
		item, k, err := s.Pop(ctx)
		require.NoError(t, err)
		if k == kindTwo {
			found = item
			break
		}
	}
	assert.Equal(t, -1, found)
}

func TestSchedulerFIFOWithinQueue(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 5}})
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Push(i, kindOne))
	}
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		item, _, err := s.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, item)
	}
}

func TestSchedulerBalancedPushPopDrainsToZero(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{
		{Kind: kindOne, Weight: 3},
		{Kind: kindTwo, Weight: 1},
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := kindOne
			if i%2 == 0 {
				k = kindTwo
			}
			_ = s.Push(i, k)
		}(i)
	}
	wg.Wait()

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		_, _, err := s.Pop(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.ItemCount())
}

func TestSchedulerPopBlocksUntilPush(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		item, _, err := s.Pop(ctx)
		if err != nil {
			done <- -1
			return
		}
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Push(42, kindOne))

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestSchedulerPopRespectsContextCancellation(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchedulerPushRejectsUnknownKind(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 1}})
	err := s.Push(1, kindTwo)
	assert.Error(t, err)
}

func TestSchedulerDrainIsAtomic(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 1}, {Kind: kindTwo, Weight: 1}})
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Push(i, kindOne))
	}
	require.NoError(t, s.Push(99, kindTwo))

	drained := s.Drain(kindOne)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, drained)
	assert.Equal(t, 1, s.ItemCount())

	counts := s.Counts()
	assert.Equal(t, 0, counts[kindOne])
	assert.Equal(t, 1, counts[kindTwo])
}

func TestSchedulerSnapshotOrderAndContents(t *testing.T) {
	s := New[kind, int]([]Weight[kind]{{Kind: kindOne, Weight: 1}, {Kind: kindTwo, Weight: 1}})
	require.NoError(t, s.Push(1, kindOne))
	require.NoError(t, s.Push(2, kindTwo))

	var seenKinds []kind
	seenItems := map[kind][]int{}
	s.Snapshot(func(k kind, items []int) {
		seenKinds = append(seenKinds, k)
		seenItems[k] = items
	})
	assert.Equal(t, []kind{kindOne, kindTwo}, seenKinds)
	assert.Equal(t, []int{1}, seenItems[kindOne])
	assert.Equal(t, []int{2}, seenItems[kindTwo])
}
