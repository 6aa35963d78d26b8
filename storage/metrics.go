package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// RiskPoint is one row of the risk score history.
type RiskPoint struct {
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsStorage handles metric and risk history persistence.
type MetricsStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewMetricsStorage creates a metrics store over an open database.
func NewMetricsStorage(db *SQLite, logger *zap.SugaredLogger) *MetricsStorage {
	return &MetricsStorage{db: db, logger: logger}
}

// InsertMetrics records one system metrics snapshot.
func (ms *MetricsStorage) InsertMetrics(ctx context.Context, m core.SystemMetrics) error {
	_, err := ms.db.WriteDB.ExecContext(ctx, `
		INSERT INTO metrics_history (cpu_percent, memory_percent, open_ports, active_connections, process_count, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.CPUPercent, m.MemoryPercent, m.OpenPorts,
		m.ActiveConnections, m.ProcessCount, m.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// GetMetricsHistory lists snapshots newest-first, bounded by count and an
// optional time window (zero since means unbounded).
func (ms *MetricsStorage) GetMetricsHistory(ctx context.Context, since time.Time, limit int) ([]core.SystemMetrics, error) {
	if limit <= 0 {
		limit = 360
	}
	query := `SELECT cpu_percent, memory_percent, open_ports, active_connections, process_count, timestamp
		FROM metrics_history`
	args := []interface{}{}
	if !since.IsZero() {
		query += ` WHERE timestamp >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := ms.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics history: %w", err)
	}
	defer rows.Close()

	history := []core.SystemMetrics{}
	for rows.Next() {
		var m core.SystemMetrics
		if err := rows.Scan(&m.CPUPercent, &m.MemoryPercent, &m.OpenPorts,
			&m.ActiveConnections, &m.ProcessCount, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// InsertRiskScore records one risk snapshot.
func (ms *MetricsStorage) InsertRiskScore(ctx context.Context, score float64, ts time.Time) error {
	_, err := ms.db.WriteDB.ExecContext(ctx,
		`INSERT INTO risk_history (score, timestamp) VALUES (?, ?)`,
		score, ts.UTC())
	if err != nil {
		return fmt.Errorf("insert risk score: %w", err)
	}
	return nil
}

// GetRiskHistory lists risk snapshots newest-first, bounded by count and an
// optional time window.
func (ms *MetricsStorage) GetRiskHistory(ctx context.Context, since time.Time, limit int) ([]RiskPoint, error) {
	if limit <= 0 {
		limit = 360
	}
	query := `SELECT score, timestamp FROM risk_history`
	args := []interface{}{}
	if !since.IsZero() {
		query += ` WHERE timestamp >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := ms.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query risk history: %w", err)
	}
	defer rows.Close()

	history := []RiskPoint{}
	for rows.Next() {
		var p RiskPoint
		if err := rows.Scan(&p.Score, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan risk row: %w", err)
		}
		history = append(history, p)
	}
	return history, rows.Err()
}

// PruneHistoryBefore deletes metric and risk rows older than the cutoff.
func (ms *MetricsStorage) PruneHistoryBefore(ctx context.Context, cutoff time.Time) error {
	for _, table := range []string{"metrics_history", "risk_history"} {
		if _, err := ms.db.WriteDB.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff.UTC()); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}
