package detect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
	"hostsentry/metrics"
)

// EventWriter receives raw events for durable storage. Implementations must
// not block the caller; the storage side batches and flushes on its own.
type EventWriter interface {
	Enqueue(event *core.Event)
}

// Detector is the pipeline's single consumer: it drains the event bus,
// evaluates each event against the rule engine, and hands matches to the
// alert manager. Confining evaluation, scoring, and dedup to this one
// goroutine eliminates races on window state without locking.
type Detector struct {
	bus     *core.EventBus
	engine  *RuleEngine
	manager *AlertManager
	events  EventWriter
	logger  *zap.SugaredLogger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDetector wires the consumer loop. The event writer may be nil to skip
// raw-event persistence.
func NewDetector(bus *core.EventBus, engine *RuleEngine, manager *AlertManager, events EventWriter, logger *zap.SugaredLogger) *Detector {
	return &Detector{
		bus:     bus,
		engine:  engine,
		manager: manager,
		events:  events,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (d *Detector) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Detector) run() {
	defer d.wg.Done()
	d.logger.Info("Detector started")

	processed := 0
	for {
		select {
		case <-d.stopCh:
			d.drain(&processed)
			d.logger.Infow("Detector stopped", "events_processed", processed)
			return
		case event := <-d.bus.Events():
			d.process(event)
			processed++
		}
	}
}

// drain consumes events already buffered at shutdown so accepted collector
// output is not silently discarded.
func (d *Detector) drain(processed *int) {
	for {
		select {
		case event := <-d.bus.Events():
			d.process(event)
			*processed++
		default:
			return
		}
	}
}

func (d *Detector) process(event *core.Event) {
	start := time.Now()
	matches := d.engine.Evaluate(event)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	for _, match := range matches {
		if _, err := d.manager.Handle(context.Background(), match); err != nil {
			d.logger.Errorw("Failed to handle rule match",
				"rule_id", match.Rule.ID, "event_id", event.ID, "error", err)
		}
	}

	if d.events != nil {
		d.events.Enqueue(event)
	}
}

// Stop shuts the consumer down, draining buffered events first. Bounded by a
// timeout so a wedged store write cannot hang shutdown forever.
func (d *Detector) Stop() {
	close(d.stopCh)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		d.logger.Warn("Detector shutdown timed out after 10s")
	}
}
