package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	for input, want := range map[string]Severity{
		"LOW":      SeverityLow,
		"medium":   SeverityMedium,
		" High ":   SeverityHigh,
		"critical": SeverityCritical,
	} {
		got, err := ParseSeverity(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseSeverity("URGENT")
	require.Error(t, err)
	_, err = ParseSeverity("")
	require.Error(t, err)
}

func TestNewAlertBaseScore(t *testing.T) {
	tests := []struct {
		severity Severity
		weight   float64
		want     float64
	}{
		{SeverityLow, 5, 5},
		{SeverityMedium, 5, 10},
		{SeverityHigh, 8, 24},
		{SeverityCritical, 10, 40},
	}

	for _, tt := range tests {
		rule := Rule{
			ID:          "r1",
			Description: "test rule",
			Severity:    tt.severity,
			Weight:      tt.weight,
		}
		event := NewEvent(SourceCPUCollector, EventCPUUsage, map[string]interface{}{"percent": 95.0})

		alert := NewAlert(rule, event)
		assert.Equal(t, tt.want, alert.BaseScore, "severity %s", tt.severity)
		assert.Equal(t, "r1", alert.RuleID)
		assert.Equal(t, "test rule", alert.Message)
		assert.Equal(t, string(SourceCPUCollector), alert.Source)
		assert.False(t, alert.Acknowledged)
		assert.NotEmpty(t, alert.ID)
	}
}

func TestNewAlertCopiesPayload(t *testing.T) {
	event := NewEvent(SourcePortCollector, EventPortOpen, map[string]interface{}{"port": 4444})
	alert := NewAlert(Rule{ID: "r", Severity: SeverityLow, Weight: 1}, event)

	event.Payload["port"] = 9999
	assert.Equal(t, 4444, alert.Payload["port"], "alert payload must be detached from the event")
}
