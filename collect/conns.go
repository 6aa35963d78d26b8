package collect

import (
	"context"

	gopsnet "github.com/shirou/gopsutil/v4/net"

	"hostsentry/core"
)

// staleConnCycles is how many collect cycles a remote address may go
// unobserved before it is forgotten. A forgotten address alerts again on
// its next appearance, and the seen set stays bounded on long-lived hosts.
const staleConnCycles = 360

// ConnectionCollector tracks established outbound connections and emits a
// connection_active event the first time a remote address is observed.
type ConnectionCollector struct {
	cycle int
	seen  map[string]int // remote IP to the cycle it was last observed
}

func NewConnectionCollector() *ConnectionCollector {
	return &ConnectionCollector{seen: map[string]int{}}
}

func (c *ConnectionCollector) Name() string { return string(core.SourceConnectionCollector) }

func (c *ConnectionCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	c.cycle++

	var events []*core.Event
	for _, conn := range conns {
		if conn.Status != "ESTABLISHED" || conn.Raddr.IP == "" {
			continue
		}
		if !c.remember(conn.Raddr.IP) {
			continue
		}
		events = append(events, core.NewEvent(core.SourceConnectionCollector, core.EventConnectionActive, map[string]interface{}{
			"remote_ip":   conn.Raddr.IP,
			"remote_port": int(conn.Raddr.Port),
			"local_port":  int(conn.Laddr.Port),
			"pid":         int(conn.Pid),
			"process":     processName(ctx, conn.Pid),
		}))
	}
	c.forgetStale()
	return events, nil
}

// remember records an observation and reports whether the address is new.
func (c *ConnectionCollector) remember(ip string) bool {
	_, known := c.seen[ip]
	c.seen[ip] = c.cycle
	return !known
}

// forgetStale drops addresses that have not been observed recently.
// Connections that merely flap between scans stay remembered and do not
// re-alert.
func (c *ConnectionCollector) forgetStale() {
	for ip, last := range c.seen {
		if c.cycle-last > staleConnCycles {
			delete(c.seen, ip)
		}
	}
}
