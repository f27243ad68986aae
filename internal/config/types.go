package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration. YAML and JSON are both accepted; all
// durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broker    BrokerConfig    `json:"broker,omitempty"`
	Analytics AnalyticsConfig `json:"analytics,omitempty"`
	HTTP      HTTPConfig      `json:"http"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Sweeper   SweeperConfig   `json:"sweeper,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BrokerConfig configures the durable delayed-dispatch queue. When disabled
// (or unreachable at enqueue time) submissions use in-process timers.
type BrokerConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	RedisURL     string `json:"redis_url,omitempty"`
	RedisDB      int    `json:"redis_db,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
}

type AnalyticsConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type HTTPConfig struct {
	Addr      string `json:"addr,omitempty"`       // default "127.0.0.1:8080"
	BodyLimit int64  `json:"body_limit,omitempty"` // bytes, default 1 MiB
}

type DispatchConfig struct {
	EnqueueTimeout string `json:"enqueue_timeout,omitempty"`
	DeleteGap      string `json:"delete_gap,omitempty"`
}

type SweeperConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// Validate rejects configs the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if (driver == "" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required for the sqlite driver")
	}
	if c.Broker.Enabled && strings.TrimSpace(c.Broker.RedisURL) == "" {
		return errors.New("broker.redis_url is required when broker.enabled")
	}
	// Surface duration typos at startup rather than at first use.
	for _, f := range []struct{ path, raw string }{
		{"telegram.timeout", c.Telegram.Timeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"broker.poll_interval", c.Broker.PollInterval},
		{"analytics.timeout", c.Analytics.Timeout},
		{"dispatch.enqueue_timeout", c.Dispatch.EnqueueTimeout},
		{"dispatch.delete_gap", c.Dispatch.DeleteGap},
		{"sweeper.interval", c.Sweeper.Interval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional non-negative duration string.
// An empty string means "use the component default" and parses to zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// MustDuration is for fields Validate() already vetted.
func MustDuration(raw string) time.Duration {
	d, _ := ParseDurationField("", raw)
	return d
}
