package broadcast_test

import (
	"testing"
	"time"

	"github.com/srg/blehub/internal/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestEverySubscriberGetsEveryValue(t *testing.T) {
	hub := broadcast.NewHub[int](8)
	a := hub.Subscribe()
	b := hub.Subscribe()

	for i := 1; i <= 3; i++ {
		hub.Publish(i)
	}

	assert.Equal(t, []int{1, 2, 3}, drain(a.C()))
	assert.Equal(t, []int{1, 2, 3}, drain(b.C()))
}

func TestLateSubscriberDoesNotSeeEarlierValues(t *testing.T) {
	hub := broadcast.NewHub[string](8)
	early := hub.Subscribe()
	hub.Publish("before")

	late := hub.Subscribe()
	hub.Publish("after")

	assert.Equal(t, []string{"before", "after"}, drain(early.C()))
	assert.Equal(t, []string{"after"}, drain(late.C()))
}

func TestClosedSubscriberIsPrunedOnNextPublish(t *testing.T) {
	hub := broadcast.NewHub[int](4)
	var pruned []uint64
	hub.OnPrune(func(sub *broadcast.Subscription[int]) { pruned = append(pruned, sub.ID()) })

	keep := hub.Subscribe()
	gone := hub.Subscribe()
	require.Equal(t, 2, hub.Len())

	gone.Close()
	assert.Equal(t, 2, hub.Len(), "pruning is deferred to the next publish")

	hub.Publish(1)

	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, []uint64{gone.ID()}, pruned)
	assert.Equal(t, []int{1}, drain(keep.C()))

	_, ok := <-gone.C()
	assert.False(t, ok, "pruned subscription channel must be closed")
}

func TestSlowSubscriberLosesOldestAndNeverBlocksPublisher(t *testing.T) {
	hub := broadcast.NewHub[int](4)
	stalled := hub.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			hub.Publish(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a stalled subscriber")
	}

	assert.Equal(t, []int{9996, 9997, 9998, 9999}, drain(stalled.C()))
	assert.Equal(t, uint64(9996), stalled.Dropped())
}

func TestNewHubPanicsOnInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { broadcast.NewHub[int](0) })
}
