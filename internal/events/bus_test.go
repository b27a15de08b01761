package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	bus.Publish(Event{Kind: Queued, JobID: 1})

	select {
	case e := <-sub.Events:
		assert.Equal(t, Queued, e.Kind)
		assert.Equal(t, int64(1), e.JobID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: Downloading, JobID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	assert.Greater(t, sub.Lag(), int64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	sub.Unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, ok := <-sub.Events
	assert.False(t, ok)
}

func TestCloseEmitsShutdownToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	bus.Close()

	e1, ok1 := <-sub1.Events
	require.True(t, ok1)
	assert.Equal(t, Shutdown, e1.Kind)

	e2, ok2 := <-sub2.Events
	require.True(t, ok2)
	assert.Equal(t, Shutdown, e2.Kind)

	assert.Equal(t, 0, bus.SubscriberCount())
}
