package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(n int) *Event {
	return NewEvent(SourceSimulator, EventCPUUsage, map[string]interface{}{"n": n})
}

func TestEventBusPublishAndReceive(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop().Sugar())

	ev := testEvent(1)
	require.True(t, bus.Publish(ev))

	got := <-bus.Events()
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, uint64(0), bus.Dropped())
}

func TestEventBusDropsOldestWhenFull(t *testing.T) {
	bus := NewEventBus(2, zap.NewNop().Sugar())

	first := testEvent(1)
	second := testEvent(2)
	third := testEvent(3)

	require.True(t, bus.Publish(first))
	require.True(t, bus.Publish(second))
	// Buffer is full; the oldest event gives way to the newest.
	require.True(t, bus.Publish(third))

	assert.Equal(t, uint64(1), bus.Dropped())

	got := <-bus.Events()
	assert.Equal(t, second.ID, got.ID, "oldest event should have been evicted")
	got = <-bus.Events()
	assert.Equal(t, third.ID, got.ID)
}

func TestEventBusPreservesOrder(t *testing.T) {
	bus := NewEventBus(100, zap.NewNop().Sugar())

	var published []string
	for i := 0; i < 50; i++ {
		ev := testEvent(i)
		published = append(published, ev.ID)
		require.True(t, bus.Publish(ev))
	}

	for i := 0; i < 50; i++ {
		got := <-bus.Events()
		assert.Equal(t, published[i], got.ID, "event %d out of order", i)
	}
}

func TestEventBusRejectsAfterStop(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop().Sugar())

	require.True(t, bus.Publish(testEvent(1)))
	bus.Stop()

	assert.False(t, bus.Running())
	assert.False(t, bus.Publish(testEvent(2)))

	// Events buffered before Stop remain drainable.
	got := <-bus.Events()
	assert.NotNil(t, got)
}

func TestEventBusConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 100

	bus := NewEventBus(producers*perProducer, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		bus.RegisterProducer()
		go func(p int) {
			defer wg.Done()
			defer bus.DeregisterProducer()
			for i := 0; i < perProducer; i++ {
				bus.Publish(NewEvent(SourceSimulator, EventCPUUsage,
					map[string]interface{}{"producer": fmt.Sprint(p), "seq": i}))
			}
		}(p)
	}
	wg.Wait()

	status := bus.Status()
	assert.Equal(t, producers*perProducer, status.Pending)
	assert.Equal(t, uint64(0), status.Dropped)
	assert.Equal(t, 0, status.Producers)

	// Per-producer order survives interleaving.
	lastSeq := make(map[string]int)
	for i := 0; i < producers*perProducer; i++ {
		ev := <-bus.Events()
		p := ev.Payload["producer"].(string)
		seq := ev.Payload["seq"].(int)
		if last, ok := lastSeq[p]; ok {
			assert.Greater(t, seq, last)
		}
		lastSeq[p] = seq
	}
}
