// Package config holds environment-driven configuration for the warden service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default gateway endpoints, rotated through on connection failure.
var DefaultGatewayEndpoints = []string{
	"wss://gateway.example.chat/v1/stream",
}

// Config holds all runtime settings for the service.
type Config struct {
	// Token authenticates the bot against the platform API and gateway.
	Token string

	// Prefix is the leading marker for moderator commands.
	Prefix string

	// PrimaryServerID is the designated main server. Automatic blacklist
	// escalations attempt a ban there in addition to the offending server.
	PrimaryServerID string

	// ServiceChannelID is the fixed operator service-log channel.
	ServiceChannelID string

	// BanJoinPeriod is the minimum membership age for a user to count as
	// a resident (established member) during spam scoring.
	BanJoinPeriod time.Duration

	// SuspiciousTimeout is how long a first invite-link offense stays on
	// record before the user is forgotten.
	SuspiciousTimeout time.Duration

	// BanRetentionDays is how many days of messages to prune with a ban.
	BanRetentionDays int

	// DatabaseBackend selects the persistence layer: "bolt" or "sqlite".
	DatabaseBackend string

	// DatabasePath is the path to the database file.
	DatabasePath string

	// APIBaseURL is the platform REST API root.
	APIBaseURL string

	// GatewayEndpoints is a list of gateway WebSocket URLs (with fallback rotation).
	GatewayEndpoints []string

	// Compress enables zstd decompression of gateway payloads.
	Compress bool

	// MetricsAddr is the listen address for the metrics/health HTTP server.
	MetricsAddr string

	// MaxInflightHandlers bounds concurrently running gateway event handlers.
	// A hung outbound call stalls one handler; this keeps the pile-up finite.
	MaxInflightHandlers int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Prefix:              "!",
		BanJoinPeriod:       30 * 24 * time.Hour,
		SuspiciousTimeout:   5 * time.Minute,
		BanRetentionDays:    1,
		DatabaseBackend:     "bolt",
		DatabasePath:        "warden.db",
		APIBaseURL:          "https://api.example.chat/v1",
		GatewayEndpoints:    DefaultGatewayEndpoints,
		Compress:            false,
		MetricsAddr:         ":9100",
		MaxInflightHandlers: 256,
	}
}

// FromEnv builds a Config from environment variables on top of the defaults.
// WARDEN_TOKEN is required; everything else falls back to DefaultConfig values.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Token = os.Getenv("WARDEN_TOKEN")
	if cfg.Token == "" {
		return nil, fmt.Errorf("WARDEN_TOKEN is required")
	}

	if v := os.Getenv("WARDEN_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	cfg.PrimaryServerID = os.Getenv("WARDEN_PRIMARY_SERVER")
	cfg.ServiceChannelID = os.Getenv("WARDEN_SERVICE_CHANNEL")

	if v := os.Getenv("WARDEN_BAN_JOIN_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WARDEN_BAN_JOIN_PERIOD: %w", err)
		}
		cfg.BanJoinPeriod = d
	}
	if v := os.Getenv("WARDEN_SUSPICIOUS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WARDEN_SUSPICIOUS_TIMEOUT: %w", err)
		}
		cfg.SuspiciousTimeout = d
	}
	if v := os.Getenv("WARDEN_BAN_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WARDEN_BAN_RETENTION_DAYS: %w", err)
		}
		cfg.BanRetentionDays = n
	}

	if v := os.Getenv("WARDEN_DB_BACKEND"); v != "" {
		if v != "bolt" && v != "sqlite" {
			return nil, fmt.Errorf("invalid WARDEN_DB_BACKEND %q: must be bolt or sqlite", v)
		}
		cfg.DatabaseBackend = v
	}
	if v := os.Getenv("WARDEN_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("WARDEN_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("WARDEN_GATEWAY_ENDPOINTS"); v != "" {
		cfg.GatewayEndpoints = splitList(v)
	}
	cfg.Compress = os.Getenv("WARDEN_GATEWAY_COMPRESS") == "true"

	if v := os.Getenv("WARDEN_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("WARDEN_MAX_INFLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WARDEN_MAX_INFLIGHT: %q", v)
		}
		cfg.MaxInflightHandlers = n
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
