package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hostsentry/core"
)

func TestMetricsHistoryRoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewMetricsStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertMetrics(ctx, core.SystemMetrics{
			CPUPercent:        float64(10 * i),
			MemoryPercent:     42.5,
			OpenPorts:         7,
			ActiveConnections: 3,
			ProcessCount:      120,
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := store.GetMetricsHistory(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Newest first.
	assert.Equal(t, 20.0, history[0].CPUPercent)
	assert.Equal(t, 42.5, history[0].MemoryPercent)
	assert.Equal(t, 7, history[0].OpenPorts)
	assert.Equal(t, 120, history[0].ProcessCount)

	// Window filter.
	recent, err := store.GetMetricsHistory(ctx, base.Add(90*time.Second), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRiskHistoryRoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewMetricsStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.InsertRiskScore(ctx, 12.5, base))
	require.NoError(t, store.InsertRiskScore(ctx, 30.0, base.Add(time.Minute)))

	history, err := store.GetRiskHistory(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 30.0, history[0].Score)
	assert.Equal(t, 12.5, history[1].Score)

	limited, err := store.GetRiskHistory(ctx, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneHistoryBefore(t *testing.T) {
	db := testDB(t)
	store := NewMetricsStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.InsertRiskScore(ctx, 5, now.Add(-48*time.Hour)))
	require.NoError(t, store.InsertRiskScore(ctx, 10, now))
	require.NoError(t, store.InsertMetrics(ctx, core.SystemMetrics{Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.InsertMetrics(ctx, core.SystemMetrics{Timestamp: now}))

	require.NoError(t, store.PruneHistoryBefore(ctx, now.Add(-24*time.Hour)))

	risk, err := store.GetRiskHistory(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, risk, 1)

	metrics, err := store.GetMetricsHistory(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
}
