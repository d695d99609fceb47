// Package config loads process configuration and owns the persisted
// data-directory layout.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the top-level process configuration. Values come from the
// environment (AIOPS_* variables), optionally seeded from a .env file.
type Config struct {
	DataDir   string
	LogLevel  string
	LogFormat string

	// Syslog receiver bind address, e.g. ":5514". Empty disables the receiver.
	SyslogListen string

	// LLM analyzer endpoint. Empty disables AI assistance.
	LLMEndpoint string
	LLMModel    string
	LLMTimeout  time.Duration

	// Device client request timeout.
	DeviceTimeout time.Duration

	// Notification webhook endpoint. Empty falls back to log-only dispatch.
	WebhookURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := &Config{
		DataDir:       envOr("AIOPS_DATA_DIR", "data/ai-ops"),
		LogLevel:      envOr("AIOPS_LOG_LEVEL", "info"),
		LogFormat:     envOr("AIOPS_LOG_FORMAT", "auto"),
		SyslogListen:  envOr("AIOPS_SYSLOG_LISTEN", ":5514"),
		LLMEndpoint:   os.Getenv("AIOPS_LLM_ENDPOINT"),
		LLMModel:      envOr("AIOPS_LLM_MODEL", "default"),
		LLMTimeout:    envDuration("AIOPS_LLM_TIMEOUT", 30*time.Second),
		DeviceTimeout: envDuration("AIOPS_DEVICE_TIMEOUT", 10*time.Second),
		WebhookURL:    os.Getenv("AIOPS_WEBHOOK_URL"),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Paths resolves the persisted state layout rooted at the data directory.
func (c *Config) Paths() Paths {
	return Paths{Root: c.DataDir}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
	return fallback
}

// Paths names every directory and index file under the data dir. Each file
// is owned by exactly one component; other components read through that
// component's API.
type Paths struct {
	Root string
}

func (p Paths) AuditDir() string          { return filepath.Join(p.Root, "audit") }
func (p Paths) SystemMetricsDir() string  { return filepath.Join(p.Root, "metrics", "system") }
func (p Paths) IfaceMetricsDir() string   { return filepath.Join(p.Root, "metrics", "interfaces") }
func (p Paths) MetricsConfigFile() string { return filepath.Join(p.Root, "metrics-config.json") }
func (p Paths) RulesFile() string         { return filepath.Join(p.Root, "alerts", "rules.json") }
func (p Paths) AlertEventsDir() string    { return filepath.Join(p.Root, "alerts", "events") }
func (p Paths) MaintenanceFile() string   { return filepath.Join(p.Root, "filters", "maintenance.json") }
func (p Paths) KnownIssuesFile() string   { return filepath.Join(p.Root, "filters", "known-issues.json") }
func (p Paths) FeedbackDir() string       { return filepath.Join(p.Root, "filters", "feedback") }
func (p Paths) AnalysisDir() string       { return filepath.Join(p.Root, "analysis") }
func (p Paths) DecisionRulesFile() string { return filepath.Join(p.Root, "decisions", "rules.json") }
func (p Paths) DecisionHistoryDir() string {
	return filepath.Join(p.Root, "decisions", "history")
}
func (p Paths) SnapshotsDir() string   { return filepath.Join(p.Root, "snapshots") }
func (p Paths) RemediationDir() string { return filepath.Join(p.Root, "remediation") }
func (p Paths) SyslogConfigFile() string {
	return filepath.Join(p.Root, "enhancement", "syslog", "config.json")
}
func (p Paths) SyslogEventsDir() string {
	return filepath.Join(p.Root, "enhancement", "syslog", "events")
}
