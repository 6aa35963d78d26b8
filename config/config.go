// Package config loads HostSentry configuration from defaults, an optional
// hostsentry.yaml, and HOSTSENTRY_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the HostSentry service.
type Config struct {
	Data struct {
		Dir        string `mapstructure:"dir"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"data"`

	Rules struct {
		File          string `mapstructure:"file"`
		BlocklistFile string `mapstructure:"blocklist_file"`
	} `mapstructure:"rules"`

	Bus struct {
		BufferSize int `mapstructure:"buffer_size"`
	} `mapstructure:"bus"`

	Engine struct {
		SuppressionWindow time.Duration `mapstructure:"suppression_window"`
		DedupCacheSize    int           `mapstructure:"dedup_cache_size"`
		PersistAttempts   int           `mapstructure:"persist_attempts"`
		PersistBackoff    time.Duration `mapstructure:"persist_backoff"`
	} `mapstructure:"engine"`

	Risk struct {
		DecayLambda float64 `mapstructure:"decay_lambda"`
		MaxScore    float64 `mapstructure:"max_score"`
	} `mapstructure:"risk"`

	Collectors struct {
		Interval         time.Duration `mapstructure:"interval"`
		AllowedPorts     []int         `mapstructure:"allowed_ports"`
		ProcessWatchlist []string      `mapstructure:"process_watchlist"`
		MonitoredDir     string        `mapstructure:"monitored_dir"`
		AuthLogPath      string        `mapstructure:"auth_log_path"`
		SnapshotSchedule string        `mapstructure:"snapshot_schedule"`
	} `mapstructure:"collectors"`

	Simulator struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"simulator"`

	API struct {
		Host           string   `mapstructure:"host"`
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		RateLimit      struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Retention struct {
		EventDays   int `mapstructure:"event_days"`
		AlertDays   int `mapstructure:"alert_days"`
		HistoryDays int `mapstructure:"history_days"`
	} `mapstructure:"retention"`

	Notify struct {
		WebhookURL  string            `mapstructure:"webhook_url"`
		Headers     map[string]string `mapstructure:"headers"`
		MinSeverity string            `mapstructure:"min_severity"`
		Timeout     time.Duration     `mapstructure:"timeout"`
	} `mapstructure:"notify"`
}

func setDefaults() {
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("data.sqlite_path", "") // empty = derive from data.dir

	viper.SetDefault("rules.file", "./rules/rules.yaml")
	viper.SetDefault("rules.blocklist_file", "./rules/ip_blocklist.csv")

	viper.SetDefault("bus.buffer_size", 1000)

	viper.SetDefault("engine.suppression_window", 30*time.Second)
	viper.SetDefault("engine.dedup_cache_size", 4096)
	viper.SetDefault("engine.persist_attempts", 3)
	viper.SetDefault("engine.persist_backoff", 100*time.Millisecond)

	viper.SetDefault("risk.decay_lambda", 0.005)
	viper.SetDefault("risk.max_score", 100.0)

	viper.SetDefault("collectors.interval", 5*time.Second)
	viper.SetDefault("collectors.allowed_ports", []int{22, 80, 443, 8080, 8088})
	viper.SetDefault("collectors.process_watchlist", []string{})
	viper.SetDefault("collectors.monitored_dir", "")
	viper.SetDefault("collectors.auth_log_path", "")
	viper.SetDefault("collectors.snapshot_schedule", "@every 30s")

	viper.SetDefault("simulator.enabled", false)
	viper.SetDefault("simulator.interval", 2*time.Second)

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8088)
	viper.SetDefault("api.allowed_origins", []string{"http://localhost:5173"})
	viper.SetDefault("api.rate_limit.requests_per_second", 50)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("retention.event_days", 7)
	viper.SetDefault("retention.alert_days", 30)
	viper.SetDefault("retention.history_days", 7)

	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.min_severity", "HIGH")
	viper.SetDefault("notify.timeout", 10*time.Second)
}

func loadFromEnv() {
	viper.SetEnvPrefix("HOSTSENTRY")
	viper.AutomaticEnv()

	_ = viper.BindEnv("data.dir", "HOSTSENTRY_DATA_DIR")
	_ = viper.BindEnv("data.sqlite_path", "HOSTSENTRY_SQLITE_PATH")
	_ = viper.BindEnv("rules.file", "HOSTSENTRY_RULES_FILE")
	_ = viper.BindEnv("rules.blocklist_file", "HOSTSENTRY_BLOCKLIST_FILE")
	_ = viper.BindEnv("simulator.enabled", "HOSTSENTRY_SIMULATOR")
	_ = viper.BindEnv("api.port", "HOSTSENTRY_API_PORT")
}

// LoadConfig reads defaults, hostsentry.yaml (if present in the working
// directory or /etc/hostsentry), and environment overrides.
func LoadConfig() (*Config, error) {
	setDefaults()
	loadFromEnv()

	viper.SetConfigName("hostsentry")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/hostsentry")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bus.BufferSize <= 0 {
		return fmt.Errorf("bus.buffer_size must be positive, got %d", cfg.Bus.BufferSize)
	}
	if cfg.Risk.DecayLambda <= 0 {
		return fmt.Errorf("risk.decay_lambda must be positive, got %g", cfg.Risk.DecayLambda)
	}
	if cfg.Risk.MaxScore <= 0 {
		return fmt.Errorf("risk.max_score must be positive, got %g", cfg.Risk.MaxScore)
	}
	if cfg.Engine.SuppressionWindow < 0 {
		return fmt.Errorf("engine.suppression_window must not be negative")
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", cfg.API.Port)
	}
	if cfg.Collectors.Interval <= 0 {
		return fmt.Errorf("collectors.interval must be positive")
	}
	return nil
}
