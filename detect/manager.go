package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"hostsentry/core"
	"hostsentry/metrics"
	"hostsentry/risk"
	"hostsentry/storage"
)

// AlertStore is the slice of the persistence layer the alert manager needs.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *core.Alert) error
	AcknowledgeAlert(ctx context.Context, id string) error
}

// RiskHistoryStore records risk snapshots as alerts are accepted.
type RiskHistoryStore interface {
	InsertRiskScore(ctx context.Context, score float64, ts time.Time) error
}

// Publisher pushes accepted alerts to live subscribers.
type Publisher interface {
	BroadcastAlert(alert *core.Alert, riskScore float64)
}

// Notifier delivers out-of-band alert notifications (webhooks). Failures are
// the notifier's problem; the pipeline never waits on it.
type Notifier interface {
	Notify(alert *core.Alert, riskScore float64)
}

// dedupEntry remembers which alert currently suppresses a rule+source pair.
type dedupEntry struct {
	alertID   string
	createdAt time.Time
}

// ManagerConfig tunes the alert manager.
type ManagerConfig struct {
	// SuppressionWindow is how long repeated matches of the same
	// rule+source collapse into the existing alert.
	SuppressionWindow time.Duration
	// DedupCacheSize bounds the dedup cache entry count.
	DedupCacheSize int
	// PersistAttempts is the number of store-write attempts per alert.
	PersistAttempts int
	// PersistBackoff is the initial retry delay, doubled per attempt.
	PersistBackoff time.Duration
}

// DefaultManagerConfig mirrors the configuration defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SuppressionWindow: 30 * time.Second,
		DedupCacheSize:    4096,
		PersistAttempts:   3,
		PersistBackoff:    100 * time.Millisecond,
	}
}

// AlertManager turns rule matches into persisted, deduplicated alerts,
// drives the risk scorer, and fans accepted alerts out to the publish
// channel and notifier. Handle runs on the single consumer goroutine;
// Acknowledge may be called concurrently from the API.
type AlertManager struct {
	alerts   AlertStore
	riskHist RiskHistoryStore
	scorer   *risk.Scorer
	pub      Publisher
	notifier Notifier
	dedup    *expirable.LRU[string, dedupEntry]
	cfg      ManagerConfig
	logger   *zap.SugaredLogger
}

// NewAlertManager wires the alert manager. Publisher and notifier may be nil
// (useful in tests and for headless operation).
func NewAlertManager(alerts AlertStore, riskHist RiskHistoryStore, scorer *risk.Scorer, pub Publisher, notifier Notifier, cfg ManagerConfig, logger *zap.SugaredLogger) *AlertManager {
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultManagerConfig().SuppressionWindow
	}
	if cfg.DedupCacheSize <= 0 {
		cfg.DedupCacheSize = DefaultManagerConfig().DedupCacheSize
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = DefaultManagerConfig().PersistAttempts
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = DefaultManagerConfig().PersistBackoff
	}
	return &AlertManager{
		alerts:   alerts,
		riskHist: riskHist,
		scorer:   scorer,
		pub:      pub,
		notifier: notifier,
		dedup:    expirable.NewLRU[string, dedupEntry](cfg.DedupCacheSize, nil, cfg.SuppressionWindow),
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle processes one rule match. Returns the created alert, or (nil, nil)
// when the match was suppressed by deduplication. Persistence failures are
// retried with backoff and, once exhausted, logged; the alert is still
// scored and published live so operators see it even when the store is down.
func (m *AlertManager) Handle(ctx context.Context, match RuleMatch) (*core.Alert, error) {
	key := dedupKey(match.Rule.ID, string(match.Event.Source))
	if entry, ok := m.dedup.Get(key); ok {
		metrics.AlertsSuppressed.Inc()
		m.logger.Debugw("Suppressed duplicate match",
			"rule_id", match.Rule.ID,
			"source", match.Event.Source,
			"suppressing_alert", entry.alertID)
		return nil, nil
	}

	alert := core.NewAlert(match.Rule, match.Event)
	m.dedup.Add(key, dedupEntry{alertID: alert.ID, createdAt: alert.CreatedAt})
	metrics.AlertsGenerated.WithLabelValues(string(alert.Severity)).Inc()

	persisted := true
	if err := m.persistWithRetry(ctx, alert); err != nil {
		persisted = false
		m.logger.Errorw("Alert not durably persisted",
			"alert_id", alert.ID, "rule_id", alert.RuleID, "error", err)
	}

	m.scorer.Add(alert)
	score := m.scorer.Current()

	if persisted {
		if err := m.riskHist.InsertRiskScore(ctx, score, alert.CreatedAt); err != nil {
			m.logger.Warnw("Failed to record risk snapshot", "error", err)
		}
	}

	if m.pub != nil {
		m.pub.BroadcastAlert(alert, score)
	}
	if m.notifier != nil {
		m.notifier.Notify(alert, score)
	}

	m.logger.Infow("Alert created",
		"alert_id", alert.ID,
		"rule_id", alert.RuleID,
		"severity", alert.Severity,
		"source", alert.Source,
		"risk_score", score)
	return alert, nil
}

// Acknowledge marks an alert acknowledged. Idempotent: acknowledging twice
// succeeds without a duplicate effect; an unknown id surfaces
// storage.ErrNotFound. An acknowledged alert no longer suppresses its
// rule+source pair, so a still-live condition may alert again.
func (m *AlertManager) Acknowledge(ctx context.Context, id string) error {
	if err := m.alerts.AcknowledgeAlert(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	for _, key := range m.dedup.Keys() {
		if entry, ok := m.dedup.Peek(key); ok && entry.alertID == id {
			m.dedup.Remove(key)
		}
	}
	return nil
}

func (m *AlertManager) persistWithRetry(ctx context.Context, alert *core.Alert) error {
	delay := m.cfg.PersistBackoff
	var err error
	for attempt := 1; attempt <= m.cfg.PersistAttempts; attempt++ {
		if err = m.alerts.InsertAlert(ctx, alert); err == nil {
			return nil
		}
		if attempt == m.cfg.PersistAttempts {
			break
		}
		metrics.PersistenceRetries.Inc()
		m.logger.Warnw("Alert insert failed, retrying",
			"alert_id", alert.ID, "attempt", attempt, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func dedupKey(ruleID, source string) string {
	return ruleID + "\x00" + source
}
