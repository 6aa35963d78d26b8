package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hostsentry/config"
)

// InitLogger initializes the zap logger with colored console output.
func InitLogger() (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stdout),
		zapcore.DebugLevel,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration.
func InitConfig(sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	sugar.Infow("Config loaded",
		"data_dir", cfg.Data.Dir,
		"sqlite_path", SQLitePath(cfg),
		"rules_file", cfg.Rules.File,
		"api_port", cfg.API.Port,
		"simulator", cfg.Simulator.Enabled)

	return cfg, nil
}

// SQLitePath resolves the database path, deriving it from the data directory
// when not set explicitly.
func SQLitePath(cfg *config.Config) string {
	if cfg.Data.SQLitePath != "" {
		return cfg.Data.SQLitePath
	}
	return filepath.Join(cfg.Data.Dir, "hostsentry.db")
}

// EnsureDataDir creates the data directory if it does not exist.
func EnsureDataDir(cfg *config.Config, sugar *zap.SugaredLogger) error {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.Data.Dir, err)
	}
	sugar.Debugw("Data directory ready", "path", cfg.Data.Dir)
	return nil
}
