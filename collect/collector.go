// Package collect contains the host data collectors. Each collector is a
// pure producer of typed events; the Runner drives every collector on its
// cadence and publishes the output to the event bus.
package collect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// Collector gathers one category of host observations. Implementations are
// free to keep per-cycle state (seen sets, read offsets) since Collect is
// never called concurrently for the same collector.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]*core.Event, error)
}

// Runner drives a set of collectors, each on its own goroutine and interval,
// and publishes their events to the bus. A collector error or panic is
// logged and the cycle skipped; the loop always continues.
type Runner struct {
	bus        *core.EventBus
	collectors []Collector
	interval   time.Duration
	logger     *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner over the given collectors.
func NewRunner(bus *core.EventBus, collectors []Collector, interval time.Duration, logger *zap.SugaredLogger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Runner{
		bus:        bus,
		collectors: collectors,
		interval:   interval,
		logger:     logger,
	}
}

// Start launches one producer goroutine per collector.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, c := range r.collectors {
		r.wg.Add(1)
		r.bus.RegisterProducer()
		go r.loop(ctx, c)
	}
	r.logger.Infow("Collectors started", "count", len(r.collectors), "interval", r.interval)
}

func (r *Runner) loop(ctx context.Context, c Collector) {
	defer r.wg.Done()
	defer r.bus.DeregisterProducer()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.cycle(ctx, c)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context, c Collector) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorw("Collector panicked", "collector", c.Name(), "panic", rec)
		}
	}()

	events, err := c.Collect(ctx)
	if err != nil {
		r.logger.Warnw("Collector cycle failed", "collector", c.Name(), "error", err)
		return
	}
	for _, ev := range events {
		r.bus.Publish(ev)
	}
}

// Stop terminates all collector loops and waits for them to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Collectors stopped")
}
