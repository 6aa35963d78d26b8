package collect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hostsentry/core"
)

type stubCollector struct {
	name   string
	cycles atomic.Int64
	err    error
	panics bool
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	s.cycles.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return []*core.Event{
		core.NewEvent(core.SourceSimulator, core.EventCPUUsage, map[string]interface{}{"n": 1}),
	}, nil
}

func TestRunnerPublishesCollectorEvents(t *testing.T) {
	logger := zap.NewNop().Sugar()
	bus := core.NewEventBus(100, logger)

	stub := &stubCollector{name: "stub"}
	runner := NewRunner(bus, []Collector{stub}, 10*time.Millisecond, logger)
	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool { return stub.cycles.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, bus.Status().Pending, 3)
	assert.Equal(t, 1, bus.Status().Producers)
}

func TestRunnerSurvivesErrorsAndPanics(t *testing.T) {
	logger := zap.NewNop().Sugar()
	bus := core.NewEventBus(100, logger)

	failing := &stubCollector{name: "failing", err: errors.New("no permission")}
	panicking := &stubCollector{name: "panicking", panics: true}
	healthy := &stubCollector{name: "healthy"}

	runner := NewRunner(bus, []Collector{failing, panicking, healthy}, 10*time.Millisecond, logger)
	runner.Start()
	defer runner.Stop()

	// Broken collectors keep cycling instead of killing their loop, and
	// the healthy one keeps producing.
	require.Eventually(t, func() bool {
		return failing.cycles.Load() >= 2 && panicking.cycles.Load() >= 2 && healthy.cycles.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerStopDeregistersProducers(t *testing.T) {
	logger := zap.NewNop().Sugar()
	bus := core.NewEventBus(100, logger)

	runner := NewRunner(bus, []Collector{&stubCollector{name: "a"}, &stubCollector{name: "b"}}, time.Hour, logger)
	runner.Start()
	assert.Equal(t, 2, bus.Status().Producers)

	runner.Stop()
	assert.Equal(t, 0, bus.Status().Producers)
}

func TestSimulatorEmitsValidEvents(t *testing.T) {
	sim := NewSimulator()

	for i := 0; i < 50; i++ {
		events, err := sim.Collect(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, events)
		for _, ev := range events {
			assert.Equal(t, core.SourceSimulator, ev.Source)
			assert.NotEmpty(t, ev.ID)
			assert.NotEmpty(t, ev.Payload)
			assert.False(t, ev.Timestamp.IsZero())
		}
	}
}
