package core

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"hostsentry/metrics"
)

// BusStatus is a point-in-time view of the event bus for the status API.
type BusStatus struct {
	Running   bool   `json:"running"`
	Pending   int    `json:"pending"`
	Producers int    `json:"producers"`
	Dropped   uint64 `json:"dropped"`
}

// EventBus is the single serialization point between concurrent collectors
// and the one consumer goroutine of the detection pipeline. The buffer is
// bounded: when it is full the oldest unconsumed event is dropped so a slow
// consumer can never stall a producer. Per-source ordering is preserved
// because each producer publishes sequentially.
type EventBus struct {
	ch        chan *Event
	dropped   atomic.Uint64
	producers atomic.Int64
	running   atomic.Bool
	logger    *zap.SugaredLogger

	// publishMu serializes the drop-oldest fallback so two producers
	// cannot both evict under contention and lose more than necessary.
	publishMu sync.Mutex
}

// NewEventBus creates a bus with the given buffer capacity.
func NewEventBus(capacity int, logger *zap.SugaredLogger) *EventBus {
	if capacity <= 0 {
		capacity = 1000
	}
	b := &EventBus{
		ch:     make(chan *Event, capacity),
		logger: logger,
	}
	b.running.Store(true)
	return b
}

// Publish enqueues an event without ever blocking the producer. If the
// buffer is full the oldest unconsumed event is evicted and counted as a
// drop. Returns false if the event could not be accepted (bus stopped).
func (b *EventBus) Publish(event *Event) bool {
	if !b.running.Load() {
		return false
	}

	select {
	case b.ch <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Source)).Inc()
		return true
	default:
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	select {
	case old := <-b.ch:
		b.dropped.Add(1)
		metrics.EventsDropped.Inc()
		b.logger.Debugw("Bus full, dropped oldest event",
			"dropped_id", old.ID, "dropped_source", old.Source)
	default:
	}

	select {
	case b.ch <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Source)).Inc()
		return true
	default:
		// Raced with another producer refilling the buffer; count the
		// new event as the drop instead.
		b.dropped.Add(1)
		metrics.EventsDropped.Inc()
		return false
	}
}

// Events returns the consumer side of the bus. There is exactly one internal
// consumer; events arrive in publication order.
func (b *EventBus) Events() <-chan *Event {
	return b.ch
}

// RegisterProducer records an active producer for status reporting.
func (b *EventBus) RegisterProducer() {
	b.producers.Add(1)
}

// DeregisterProducer removes a producer from the active count.
func (b *EventBus) DeregisterProducer() {
	b.producers.Add(-1)
}

// Stop marks the bus stopped. Publishes after Stop are rejected; events
// already buffered remain available to the consumer for draining.
func (b *EventBus) Stop() {
	if b.running.CompareAndSwap(true, false) {
		b.logger.Info("Event bus stopped")
	}
}

// Running reports whether the bus accepts publishes.
func (b *EventBus) Running() bool {
	return b.running.Load()
}

// Dropped returns the total number of events dropped under overload.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Status reports the bus state for the status endpoint.
func (b *EventBus) Status() BusStatus {
	return BusStatus{
		Running:   b.running.Load(),
		Pending:   len(b.ch),
		Producers: int(b.producers.Load()),
		Dropped:   b.dropped.Load(),
	}
}
