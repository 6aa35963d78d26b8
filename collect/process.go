package collect

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"hostsentry/core"
)

// ProcessCollector scans running processes and emits a process_running event
// for each newly seen pid. The payload carries a watchlisted flag so rules
// can alert only on names the operator cares about.
type ProcessCollector struct {
	watchlist map[string]bool
	seen      map[int32]bool
}

func NewProcessCollector(watchlist []string) *ProcessCollector {
	wl := make(map[string]bool, len(watchlist))
	for _, name := range watchlist {
		wl[strings.ToLower(name)] = true
	}
	return &ProcessCollector{watchlist: wl, seen: map[int32]bool{}}
}

func (c *ProcessCollector) Name() string { return string(core.SourceProcessCollector) }

func (c *ProcessCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var events []*core.Event
	current := make(map[int32]bool, len(procs))
	for _, p := range procs {
		current[p.Pid] = true
		if c.seen[p.Pid] {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // process exited between listing and inspection
		}
		name = strings.ToLower(name)
		username, _ := p.UsernameWithContext(ctx)

		events = append(events, core.NewEvent(core.SourceProcessCollector, core.EventProcessRunning, map[string]interface{}{
			"name":        name,
			"pid":         int(p.Pid),
			"username":    username,
			"watchlisted": c.watchlist[name],
		}))
	}
	c.seen = current
	return events, nil
}
