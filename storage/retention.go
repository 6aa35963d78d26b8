package storage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionManager prunes old rows on a cron schedule so an always-on host
// monitor does not grow its database without bound.
type RetentionManager struct {
	events  *EventStorage
	alerts  *AlertStorage
	metrics *MetricsStorage

	eventDays   int
	alertDays   int
	historyDays int

	cron   *cron.Cron
	logger *zap.SugaredLogger
}

// NewRetentionManager creates a retention manager. Day counts of zero
// disable pruning for that table.
func NewRetentionManager(events *EventStorage, alerts *AlertStorage, metrics *MetricsStorage, eventDays, alertDays, historyDays int, logger *zap.SugaredLogger) *RetentionManager {
	return &RetentionManager{
		events:      events,
		alerts:      alerts,
		metrics:     metrics,
		eventDays:   eventDays,
		alertDays:   alertDays,
		historyDays: historyDays,
		cron:        cron.New(),
		logger:      logger,
	}
}

// Start schedules the cleanup job (hourly) and runs the scheduler.
func (rm *RetentionManager) Start() error {
	if _, err := rm.cron.AddFunc("@hourly", rm.Cleanup); err != nil {
		return err
	}
	rm.cron.Start()
	return nil
}

// Stop stops the scheduler, waiting for a running cleanup to finish.
func (rm *RetentionManager) Stop() {
	<-rm.cron.Stop().Done()
}

// Cleanup applies the retention policy once.
func (rm *RetentionManager) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if rm.eventDays > 0 {
		cutoff := now.AddDate(0, 0, -rm.eventDays)
		if n, err := rm.events.PruneEventsBefore(ctx, cutoff); err != nil {
			rm.logger.Warnw("Event retention cleanup failed", "error", err)
		} else if n > 0 {
			rm.logger.Infow("Pruned old events", "rows", n)
		}
	}
	if rm.alertDays > 0 {
		cutoff := now.AddDate(0, 0, -rm.alertDays)
		if n, err := rm.alerts.PruneAlertsBefore(ctx, cutoff); err != nil {
			rm.logger.Warnw("Alert retention cleanup failed", "error", err)
		} else if n > 0 {
			rm.logger.Infow("Pruned old alerts", "rows", n)
		}
	}
	if rm.historyDays > 0 {
		cutoff := now.AddDate(0, 0, -rm.historyDays)
		if err := rm.metrics.PruneHistoryBefore(ctx, cutoff); err != nil {
			rm.logger.Warnw("History retention cleanup failed", "error", err)
		}
	}
}
