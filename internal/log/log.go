// Package log provides JSON-lines structured logging for the feature
// discovery daemon.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
		Debug:  false,
	}
}

// New creates a new JSON-lines structured logger.
//
// Log levels:
//   - debug: Verbose (enabled via FEATD_DEBUG=1)
//   - info: Startup, shutdown, config reload
//   - warn: Non-fatal issues (dropped events, collaborator degradation)
//   - error: Fatal issues requiring attention
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Rename "time" to "ts" to keep log lines compact
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(output, opts)
	return slog.New(handler)
}

// NewFromEnv creates a logger configured from environment variables.
// FEATD_DEBUG=1 enables debug logging.
func NewFromEnv() *slog.Logger {
	cfg := DefaultConfig()
	if os.Getenv("FEATD_DEBUG") == "1" {
		cfg.Debug = true
	}
	return New(cfg)
}

// StartupInfo holds information to log at daemon startup.
type StartupInfo struct {
	Version       string
	ConfigPath    string
	CatalogPath   string
	DatabasePath  string
	SchemaVersion int
	ListenAddr    string
	PID           int
}

// LogStartup logs daemon startup information.
func LogStartup(logger *slog.Logger, info StartupInfo) {
	logger.Info("daemon started",
		"version", info.Version,
		"config_path", info.ConfigPath,
		"catalog_path", info.CatalogPath,
		"database_path", info.DatabasePath,
		"schema_version", info.SchemaVersion,
		"listen_addr", info.ListenAddr,
		"pid", info.PID,
	)
}

// LogShutdown logs daemon shutdown.
func LogShutdown(logger *slog.Logger, reason string) {
	logger.Info("daemon shutting down", "reason", reason)
}

// LogConfigReload logs configuration reload.
func LogConfigReload(logger *slog.Logger, configPath string) {
	logger.Info("configuration reloaded", "config_path", configPath)
}

// LogEventDropped logs when an interaction event is dropped.
func LogEventDropped(logger *slog.Logger, userID, featureID, reason string) {
	logger.Warn("event dropped",
		"user_id", userID,
		"feature_id", featureID,
		"reason", reason,
	)
}

// LogCollaboratorDegraded logs when the semantic collaborator fails and the
// engine proceeds with a zero-weight semantic component.
func LogCollaboratorDegraded(logger *slog.Logger, err error) {
	logger.Warn("semantic collaborator unavailable; scoring degraded", "error", err)
}

// LogSQLiteError logs SQLite errors.
func LogSQLiteError(logger *slog.Logger, operation string, err error) {
	logger.Error("sqlite error", "operation", operation, "error", err)
}
