// Package config loads the two configuration layers the kernel needs: the
// process-level shell (log level, optional live-view listener, admin token)
// read from the environment, and the declarative simulation scenario read
// from a YAML document (see scenario.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLiveViewAddr is the default TCP address for the optional live record stream.
	DefaultLiveViewAddr = ":7420"
	// DefaultPingInterval controls the keepalive cadence for live-view WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound live-view WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20

	// DefaultLogLevel controls verbosity for kernel logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "simkernel.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ProcessConfig captures the runtime tunables for the simulator process shell,
// as distinct from the declarative per-run Scenario (see scenario.go).
type ProcessConfig struct {
	LiveViewAddr    string
	LiveViewEnabled bool
	MaxPayloadBytes int64
	PingInterval    time.Duration
	AdminToken      string
	Logging         LoggingConfig
}

// LoadProcess reads the process shell configuration from environment variables,
// applying sane defaults and returning descriptive errors for invalid overrides.
func LoadProcess() (*ProcessConfig, error) {
	cfg := &ProcessConfig{
		LiveViewAddr:    getString("SIMKERNEL_LIVEVIEW_ADDR", DefaultLiveViewAddr),
		LiveViewEnabled: os.Getenv("SIMKERNEL_LIVEVIEW_ENABLED") == "true",
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		AdminToken:      strings.TrimSpace(os.Getenv("SIMKERNEL_ADMIN_TOKEN")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("SIMKERNEL_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("SIMKERNEL_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIMKERNEL_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SIMKERNEL_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
