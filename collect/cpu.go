package collect

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"hostsentry/core"
)

// CPUCollector samples CPU and memory utilization. Every cycle emits one
// cpu_usage event; sustained-load detection is the rule engine's job, the
// collector just reports readings.
type CPUCollector struct{}

func NewCPUCollector() *CPUCollector {
	return &CPUCollector{}
}

func (c *CPUCollector) Name() string { return string(core.SourceCPUCollector) }

func (c *CPUCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	cpuPercent := 0.0
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	memPercent := 0.0
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memPercent = vm.UsedPercent
	}

	return []*core.Event{
		core.NewEvent(core.SourceCPUCollector, core.EventCPUUsage, map[string]interface{}{
			"percent":        cpuPercent,
			"memory_percent": memPercent,
		}),
	}, nil
}
