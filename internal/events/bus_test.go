package events

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(stored, buffer int) *Bus {
	return NewBus(Config{MaxStoredEvents: stored, SubscriberBuffer: buffer}, hclog.NewNullLogger())
}

func TestBus_Since(t *testing.T) {
	bus := newTestBus(3, 0)
	bus.Publish(Event{Type: EventJobQueued, Message: "1"})
	bus.Publish(Event{Type: EventJobStarted, Message: "2"})
	bus.Publish(Event{Type: EventJobProgress, Message: "3"})

	events := bus.Since(1, EventFilter{})
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestBus_CapsHistory(t *testing.T) {
	bus := newTestBus(2, 0)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0, EventFilter{})
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
	assert.Equal(t, int64(3), bus.Stats().TotalEvents)
}

func TestBus_SinceFilter(t *testing.T) {
	bus := newTestBus(10, 0)
	bus.Publish(Event{Type: EventJobStarted, JobID: "a", JobType: "encode"})
	bus.Publish(Event{Type: EventJobStarted, JobID: "b", JobType: "mux"})
	bus.Publish(Event{Type: EventJobCompleted, JobID: "a", JobType: "encode"})

	assert.Len(t, bus.Since(0, EventFilter{JobID: "a"}), 2)
	assert.Len(t, bus.Since(0, EventFilter{JobTypes: []string{"mux"}}), 1)
	assert.Len(t, bus.Since(0, EventFilter{Types: []EventType{EventJobCompleted}}), 1)
}

func TestBus_SubscribeDeliversInOrder(t *testing.T) {
	bus := newTestBus(10, 8)
	sub := bus.Subscribe(EventFilter{Types: []EventType{EventJobProgress}})

	bus.Publish(Event{Type: EventJobStarted})
	bus.Publish(Event{Type: EventJobProgress, Progress: 0.1})
	bus.Publish(Event{Type: EventJobProgress, Progress: 0.2})

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, 0.1, first.Progress)
	assert.Equal(t, 0.2, second.Progress)
	assert.Equal(t, 1, bus.Stats().ActiveSubscriptions)

	bus.Unsubscribe(sub.ID)
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, bus.Stats().ActiveSubscriptions)
}

func TestBus_SlowSubscriberKeepsLatest(t *testing.T) {
	bus := newTestBus(100, 2)
	sub := bus.Subscribe(EventFilter{})

	for i := 1; i <= 5; i++ {
		bus.Publish(Event{Type: EventJobProgress, Progress: float64(i) / 10})
	}

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, 0.4, first.Progress)
	assert.Equal(t, 0.5, second.Progress)
	assert.Equal(t, int64(3), sub.Dropped())
	assert.Equal(t, int64(3), bus.Stats().Dropped)

	// History is not affected by slow subscribers.
	assert.Len(t, bus.Since(0, EventFilter{}), 5)
}

func TestBus_Close(t *testing.T) {
	bus := newTestBus(10, 1)
	sub := bus.Subscribe(EventFilter{})
	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	bus.Publish(Event{Type: EventJobQueued})
	assert.Empty(t, bus.Since(0, EventFilter{}))

	late := bus.Subscribe(EventFilter{})
	_, open = <-late.Events()
	assert.False(t, open)
}
