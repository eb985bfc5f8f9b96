package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
server:
  port: 8080
  read_timeout: 15s
  write_timeout: 15s
  shutdown_timeout: 30s
backend:
  type: kafka
kafka:
  brokers: ["localhost:9092"]
  topic: polypulse.alerts
  consumer:
    group_id: polypulse
    backoff_min: 100ms
    backoff_max: 5s
stream:
  url: wss://example.com/ws/market
  assets: ["tok1", "tok2"]
  handshake_timeout: 10s
  reconnect_base: 1s
detection:
  flash_move_pct: 0.1
  flash_move_window: 5m
  spread_window: 10m
  alert_cooldown: 5m
velocity:
  min_data_points: 5
  sample_window: 10m
metadata:
  cache_ttl: 1h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != "test" {
		t.Fatalf("environment = %s", cfg.Environment)
	}
	if got := cfg.Server.ReadTimeout.Std(); got != 15*time.Second {
		t.Fatalf("read_timeout = %v", got)
	}
	if got := cfg.Kafka.Consumer.BackoffMin.Std(); got != 100*time.Millisecond {
		t.Fatalf("backoff_min = %v", got)
	}
	if got := cfg.Detection.FlashMoveWindow.Std(); got != 5*time.Minute {
		t.Fatalf("flash_move_window = %v", got)
	}
	if got := cfg.Detection.SpreadWindow.Std(); got != 10*time.Minute {
		t.Fatalf("spread_window = %v", got)
	}
	if got := cfg.Metadata.CacheTTL.Std(); got != time.Hour {
		t.Fatalf("cache_ttl = %v", got)
	}
	if len(cfg.Stream.Assets) != 2 || cfg.Stream.Assets[0] != "tok1" {
		t.Fatalf("assets = %v", cfg.Stream.Assets)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	bad := strings.Replace(sampleYAML, "read_timeout: 15s", "read_timeout: soon", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing environment",
			mutate:  func(c *Config) { c.Environment = "" },
			wantErr: "environment",
		},
		{
			name:    "missing backend type",
			mutate:  func(c *Config) { c.Backend.Type = "" },
			wantErr: "backend.type",
		},
		{
			name:    "unknown backend type",
			mutate:  func(c *Config) { c.Backend.Type = "postgres" },
			wantErr: "backend.type",
		},
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.Stream.URL = "" },
			wantErr: "stream.url",
		},
		{
			name:    "kafka backend without brokers",
			mutate:  func(c *Config) { c.Kafka.Brokers = nil },
			wantErr: "kafka.brokers",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("POLYPULSE_STREAM_URL", "wss://override.example.com/ws")
	t.Setenv("POLYPULSE_ASSETS", "a,b,c")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.URL != "wss://override.example.com/ws" {
		t.Fatalf("stream url = %s", cfg.Stream.URL)
	}
	if len(cfg.Stream.Assets) != 3 {
		t.Fatalf("assets = %v", cfg.Stream.Assets)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
}
