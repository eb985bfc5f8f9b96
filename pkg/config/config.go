package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int      `yaml:"port"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"` // kafka | clickhouse | log
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int      `yaml:"max_attempts"`
			Linger       Duration `yaml:"linger"`
			BatchBytes   int      `yaml:"batch_bytes"`
			BatchSize    int      `yaml:"batch_size"`
			WriteTimeout Duration `yaml:"write_timeout"`
			ReadTimeout  Duration `yaml:"read_timeout"`
			Async        bool     `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string   `yaml:"group_id"`
			Workers    int      `yaml:"workers"`
			BufferSize int      `yaml:"buffer_size"`
			RetryMax   int      `yaml:"retry_max"`
			BackoffMin Duration `yaml:"backoff_min"`
			BackoffMax Duration `yaml:"backoff_max"`
			DLQTopic   string   `yaml:"dlq_topic"`
			MinBytes   int      `yaml:"min_bytes"`
			MaxBytes   int      `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string   `yaml:"host"`
		Port             int      `yaml:"port"`
		Database         string   `yaml:"database"`
		Table            string   `yaml:"table"`
		User             string   `yaml:"user"`
		Password         string   `yaml:"password"`
		UseHTTP          bool     `yaml:"use_http"`
		AsyncInsert      bool     `yaml:"async_insert"`
		WaitForAsync     bool     `yaml:"wait_for_async_insert"`
		DialTimeout      Duration `yaml:"dial_timeout"`
		ReadTimeout      Duration `yaml:"read_timeout"`
		WriteTimeout     Duration `yaml:"write_timeout"`
		MaxExecutionTime Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Stream struct {
		URL               string   `yaml:"url"`
		Assets            []string `yaml:"assets"`
		HandshakeTimeout  Duration `yaml:"handshake_timeout"`
		HeartbeatInterval Duration `yaml:"heartbeat_interval"`
		ReconnectBase     Duration `yaml:"reconnect_base"`
		MaxReconnects     int      `yaml:"max_reconnects"`
		PriceChangePct    float64  `yaml:"price_change_pct"`
		EventBuffer       int      `yaml:"event_buffer"`
	} `yaml:"stream"`
	Detection struct {
		FlashMovePct        float64  `yaml:"flash_move_pct"`
		FlashMoveWindow     Duration `yaml:"flash_move_window"`
		WhaleNotional       float64  `yaml:"whale_notional"`
		VolumeSpikeFactor   float64  `yaml:"volume_spike_factor"`
		VolumeRecentWindow  Duration `yaml:"volume_recent_window"`
		VolumeBaseWindow    Duration `yaml:"volume_base_window"`
		SpreadCollapsePct   float64  `yaml:"spread_collapse_pct"`
		SpreadWindow        Duration `yaml:"spread_window"`
		ImbalanceRatio      float64  `yaml:"imbalance_ratio"`
		AlertCooldown       Duration `yaml:"alert_cooldown"`
		CleanupInterval     Duration `yaml:"cleanup_interval"`
		PipelineBuffer      int      `yaml:"pipeline_buffer"`
		RecentAlertsHistory int      `yaml:"recent_alerts_history"`
	} `yaml:"detection"`
	Velocity struct {
		MinDataPoints   int      `yaml:"min_data_points"`
		ZScoreThreshold float64  `yaml:"z_score_threshold"`
		SampleWindow    Duration `yaml:"sample_window"`
	} `yaml:"velocity"`
	Metadata struct {
		GammaURL string   `yaml:"gamma_url"`
		CacheTTL Duration `yaml:"cache_ttl"`
		Timeout  Duration `yaml:"timeout"`
		Redis    struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"metadata"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POLYPULSE_STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("POLYPULSE_ASSETS"); v != "" {
		c.Stream.Assets = strings.Split(v, ",")
	}
	if v := os.Getenv("POLYPULSE_BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse", "log":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'log', got '%s'", c.Backend.Type)
	}
	if c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty for kafka backend")
	}
	return nil
}
