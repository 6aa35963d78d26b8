package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// AlertStorage handles alert persistence.
type AlertStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewAlertStorage creates an alert store over an open database.
func NewAlertStorage(db *SQLite, logger *zap.SugaredLogger) *AlertStorage {
	return &AlertStorage{db: db, logger: logger}
}

// InsertAlert persists a new alert.
func (as *AlertStorage) InsertAlert(ctx context.Context, alert *core.Alert) error {
	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	_, err = as.db.WriteDB.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, severity, base_score, message, source, payload, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleID, string(alert.Severity), alert.BaseScore,
		alert.Message, alert.Source, string(payload),
		boolToInt(alert.Acknowledged), alert.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetAlerts lists alerts newest-first, optionally filtered by severity.
func (as *AlertStorage) GetAlerts(ctx context.Context, severity string, limit, offset int) ([]core.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, rule_id, severity, base_score, message, source, payload, acknowledged, created_at FROM alerts`
	args := []interface{}{}
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := as.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetAlert fetches one alert by id, returning ErrNotFound for unknown ids.
func (as *AlertStorage) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	row := as.db.ReadDB.QueryRowContext(ctx, `
		SELECT id, rule_id, severity, base_score, message, source, payload, acknowledged, created_at
		FROM alerts WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert %s: %w", id, err)
	}
	return alert, nil
}

// AcknowledgeAlert marks an alert acknowledged. Idempotent: already
// acknowledged is a no-op, unknown id is ErrNotFound.
func (as *AlertStorage) AcknowledgeAlert(ctx context.Context, id string) error {
	var acked int
	err := as.db.ReadDB.QueryRowContext(ctx,
		`SELECT acknowledged FROM alerts WHERE id = ?`, id).Scan(&acked)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query alert %s: %w", id, err)
	}
	if acked != 0 {
		return nil
	}
	if _, err := as.db.WriteDB.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	return nil
}

// CountAlerts returns the total number of stored alerts.
func (as *AlertStorage) CountAlerts(ctx context.Context) (int64, error) {
	var n int64
	err := as.db.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}

// PruneAlertsBefore deletes alerts created before the cutoff, returning the
// number removed.
func (as *AlertStorage) PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := as.db.WriteDB.ExecContext(ctx,
		`DELETE FROM alerts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*core.Alert, error) {
	var (
		a       core.Alert
		sev     string
		payload string
		acked   int
	)
	if err := row.Scan(&a.ID, &a.RuleID, &sev, &a.BaseScore, &a.Message,
		&a.Source, &payload, &acked, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Severity = core.Severity(sev)
	a.Acknowledged = acked != 0
	if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
		a.Payload = map[string]interface{}{}
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]core.Alert, error) {
	alerts := []core.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
