package collect

import (
	"context"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"hostsentry/core"
)

// PortCollector scans listening sockets and emits a port_open event the
// first time a port outside the allowed set appears.
type PortCollector struct {
	allowed map[int]bool
	seen    map[int]bool
}

func NewPortCollector(allowedPorts []int) *PortCollector {
	allowed := make(map[int]bool, len(allowedPorts))
	for _, p := range allowedPorts {
		allowed[p] = true
	}
	return &PortCollector{allowed: allowed, seen: map[int]bool{}}
}

func (c *PortCollector) Name() string { return string(core.SourcePortCollector) }

func (c *PortCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}

	var events []*core.Event
	current := make(map[int]bool, len(conns))
	for _, conn := range conns {
		if conn.Status != "LISTEN" {
			continue
		}
		port := int(conn.Laddr.Port)
		current[port] = true
		if c.allowed[port] || c.seen[port] {
			continue
		}
		events = append(events, core.NewEvent(core.SourcePortCollector, core.EventPortOpen, map[string]interface{}{
			"port":    port,
			"pid":     int(conn.Pid),
			"process": processName(ctx, conn.Pid),
			"allowed": false,
		}))
	}
	c.seen = current
	return events, nil
}

// processName resolves a pid to its executable name, best-effort.
func processName(ctx context.Context, pid int32) string {
	if pid == 0 {
		return "unknown"
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "unknown"
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "unknown"
	}
	return name
}
