package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// Config controls webhook notification delivery.
type Config struct {
	WebhookURL  string
	Headers     map[string]string
	MinSeverity core.Severity
	Timeout     time.Duration
}

// WebhookNotifier posts alerts at or above a minimum severity to an
// operator-supplied endpoint. Delivery runs asynchronously with a short
// retry so a slow receiver never stalls the detection pipeline.
type WebhookNotifier struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

func NewWebhookNotifier(cfg Config, logger *zap.SugaredLogger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type webhookPayload struct {
	Alert     *core.Alert `json:"alert"`
	RiskScore float64     `json:"risk_score"`
}

// Notify posts the alert if it meets the severity floor. Always returns
// immediately; delivery happens on a background goroutine.
func (n *WebhookNotifier) Notify(alert *core.Alert, riskScore float64) {
	if n.cfg.WebhookURL == "" {
		return
	}
	if core.SeverityRank(alert.Severity) < core.SeverityRank(n.cfg.MinSeverity) {
		return
	}
	go n.deliver(alert, riskScore)
}

func (n *WebhookNotifier) deliver(alert *core.Alert, riskScore float64) {
	body, err := json.Marshal(webhookPayload{Alert: alert, RiskScore: riskScore})
	if err != nil {
		n.logger.Errorw("Failed to encode webhook payload", "alert_id", alert.ID, "error", err)
		return
	}

	for attempt := 1; attempt <= 3; attempt++ {
		if err = n.post(body); err == nil {
			return
		}
		n.logger.Warnw("Webhook delivery failed",
			"alert_id", alert.ID, "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	n.logger.Errorw("Webhook delivery abandoned", "alert_id", alert.ID, "url", n.cfg.WebhookURL)
}

func (n *WebhookNotifier) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
