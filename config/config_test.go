package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.Equal(t, 1000, cfg.Bus.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.Engine.SuppressionWindow)
	assert.Equal(t, 0.005, cfg.Risk.DecayLambda)
	assert.Equal(t, 100.0, cfg.Risk.MaxScore)
	assert.Equal(t, 5*time.Second, cfg.Collectors.Interval)
	assert.Equal(t, 8088, cfg.API.Port)
	assert.Equal(t, 7, cfg.Retention.EventDays)
	assert.Equal(t, "HIGH", cfg.Notify.MinSeverity)
	assert.False(t, cfg.Simulator.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	chtemp(t)

	yaml := `
bus:
  buffer_size: 250
api:
  port: 9000
simulator:
  enabled: true
`
	require.NoError(t, os.WriteFile("hostsentry.yaml", []byte(yaml), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Bus.BufferSize)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.True(t, cfg.Simulator.Enabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, "./data", cfg.Data.Dir)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	chtemp(t)

	t.Setenv("HOSTSENTRY_API_PORT", "9100")
	t.Setenv("HOSTSENTRY_SIMULATOR", "true")
	t.Setenv("HOSTSENTRY_DATA_DIR", "/var/lib/hostsentry")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.True(t, cfg.Simulator.Enabled)
	assert.Equal(t, "/var/lib/hostsentry", cfg.Data.Dir)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad buffer size", "bus:\n  buffer_size: 0\n", "buffer_size"},
		{"bad lambda", "risk:\n  decay_lambda: -1\n", "decay_lambda"},
		{"bad port", "api:\n  port: 99999\n", "port"},
		{"bad interval", "collectors:\n  interval: 0\n", "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chtemp(t)
			require.NoError(t, os.WriteFile("hostsentry.yaml", []byte(tt.yaml), 0o644))

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
