package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgcast/pkg/logx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  rate_per_sec: 5
storage:
  driver: sqlite
  path: /var/lib/tgcast/tasks.db
broker:
  enabled: true
  redis_url: redis://localhost:6379/0
  poll_interval: 500ms
dispatch:
  enqueue_timeout: 500ms
sweeper:
  enabled: true
  interval: 1m
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path, logx.Nop())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.RatePerSec != 5 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if !cfg.Broker.Enabled || cfg.Broker.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("broker = %+v", cfg.Broker)
	}
	if got := MustDuration(cfg.Sweeper.Interval); got != time.Minute {
		t.Fatalf("sweeper interval = %v", got)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit the config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"telegram": {"token": "123:abc"},
		"storage": {"driver": "memory"}
	}`)
	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			"unknown field",
			"config.yaml",
			"telegram:\n  token: x\n  typo_field: 1\nstorage:\n  driver: memory\n",
		},
		{
			"missing token",
			"config.yaml",
			"storage:\n  driver: memory\n",
		},
		{
			"sqlite without path",
			"config.yaml",
			"telegram:\n  token: x\nstorage:\n  driver: sqlite\n",
		},
		{
			"broker enabled without url",
			"config.yaml",
			"telegram:\n  token: x\nstorage:\n  driver: memory\nbroker:\n  enabled: true\n",
		},
		{
			"bad duration",
			"config.yaml",
			"telegram:\n  token: x\n  timeout: soonish\nstorage:\n  driver: memory\n",
		},
		{
			"trailing json document",
			"config.json",
			`{"telegram":{"token":"x"},"storage":{"driver":"memory"}}{"again":true}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tc.file, tc.content)
			if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
				t.Fatal("expected Load to fail")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "1500ms"); err != nil || d != 1500*time.Millisecond {
		t.Fatalf("1500ms = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "five minutes"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected negative rejection")
	}
}
