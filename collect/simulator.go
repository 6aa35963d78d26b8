package collect

import (
	"context"
	"math/rand"

	"github.com/brianvoe/gofakeit/v6"

	"hostsentry/core"
)

// Simulator fabricates plausible host activity so the pipeline can be
// exercised without privileged access to a real machine. Each cycle emits
// a small random batch spanning every event type.
type Simulator struct {
	faker *gofakeit.Faker
}

func NewSimulator() *Simulator {
	return &Simulator{faker: gofakeit.New(0)}
}

func (s *Simulator) Name() string { return string(core.SourceSimulator) }

func (s *Simulator) Collect(ctx context.Context) ([]*core.Event, error) {
	count := 1 + rand.Intn(3)
	events := make([]*core.Event, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, s.randomEvent())
	}
	return events, nil
}

func (s *Simulator) randomEvent() *core.Event {
	switch rand.Intn(6) {
	case 0:
		return core.NewEvent(core.SourceSimulator, core.EventPortOpen, map[string]interface{}{
			"port":    s.faker.Number(1024, 65535),
			"pid":     s.faker.Number(100, 32768),
			"process": s.faker.AppName(),
			"allowed": false,
		})
	case 1:
		return core.NewEvent(core.SourceSimulator, core.EventProcessRunning, map[string]interface{}{
			"name":        s.faker.RandomString([]string{"nc", "nmap", "xmrig", "sshd", "cron", "nginx"}),
			"pid":         s.faker.Number(100, 32768),
			"username":    s.faker.Username(),
			"watchlisted": s.faker.Bool(),
		})
	case 2:
		return core.NewEvent(core.SourceSimulator, core.EventConnectionActive, map[string]interface{}{
			"remote_ip":   s.faker.IPv4Address(),
			"remote_port": s.faker.Number(1, 65535),
			"local_port":  s.faker.Number(1024, 65535),
			"pid":         s.faker.Number(100, 32768),
			"process":     s.faker.AppName(),
		})
	case 3:
		return core.NewEvent(core.SourceSimulator, core.EventCPUUsage, map[string]interface{}{
			"percent":        s.faker.Float64Range(0, 100),
			"memory_percent": s.faker.Float64Range(10, 95),
		})
	case 4:
		return core.NewEvent(core.SourceSimulator, core.EventFileChanged, map[string]interface{}{
			"path":       "/etc/" + s.faker.Word(),
			"hash_match": false,
			"old_hash":   s.faker.LetterN(16),
			"new_hash":   s.faker.LetterN(16),
		})
	default:
		return core.NewEvent(core.SourceSimulator, core.EventLoginFailed, map[string]interface{}{
			"failed":    true,
			"username":  s.faker.Username(),
			"remote_ip": s.faker.IPv4Address(),
		})
	}
}
