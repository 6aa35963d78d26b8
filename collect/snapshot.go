package collect

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"hostsentry/core"
	"hostsentry/metrics"
	"hostsentry/risk"
	"hostsentry/storage"
)

// Snapshotter periodically samples whole-system metrics and the current
// risk score into history tables, driven by a cron schedule.
type Snapshotter struct {
	store  *storage.MetricsStorage
	scorer *risk.Scorer
	logger *zap.SugaredLogger
	cron   *cron.Cron
}

func NewSnapshotter(store *storage.MetricsStorage, scorer *risk.Scorer, logger *zap.SugaredLogger) *Snapshotter {
	return &Snapshotter{
		store:  store,
		scorer: scorer,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the snapshot job and begins the scheduler. The schedule
// accepts standard cron expressions and @every shorthand.
func (s *Snapshotter) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.snapshot); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infow("Metrics snapshotter started", "schedule", schedule)
	return nil
}

func (s *Snapshotter) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Snapshotter) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	m := s.sample(ctx)
	if err := s.store.InsertMetrics(ctx, m); err != nil {
		s.logger.Warnw("Failed to persist metrics snapshot", "error", err)
	}

	score := s.scorer.Current()
	metrics.RiskScore.Set(score)
	if err := s.store.InsertRiskScore(ctx, score, time.Now()); err != nil {
		s.logger.Warnw("Failed to persist risk snapshot", "error", err)
	}
}

func (s *Snapshotter) sample(ctx context.Context) core.SystemMetrics {
	m := core.SystemMetrics{Timestamp: time.Now()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		m.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryPercent = vm.UsedPercent
	}
	if conns, err := gopsnet.ConnectionsWithContext(ctx, "inet"); err == nil {
		for _, conn := range conns {
			switch conn.Status {
			case "LISTEN":
				m.OpenPorts++
			case "ESTABLISHED":
				m.ActiveConnections++
			}
		}
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		m.ProcessCount = len(pids)
	}
	return m
}
