package di

import (
	"context"
	"fmt"
	"time"

	"PolyPulse/internal/domain/repository"
	"PolyPulse/internal/handler/api"
	mid "PolyPulse/internal/middleware"
	internalrepo "PolyPulse/internal/repository"
	"PolyPulse/internal/service/cache"
	"PolyPulse/internal/service/clob"
	"PolyPulse/internal/service/metadata"
	"PolyPulse/internal/services/anomaly"
	"PolyPulse/internal/services/velocity"
	"PolyPulse/internal/usecase"
	pkgch "PolyPulse/pkg/clickhouse"
	"PolyPulse/pkg/config"
	pkgkafka "PolyPulse/pkg/kafka"
	applogger "PolyPulse/pkg/logger"
	"PolyPulse/pkg/metrics"
	"PolyPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout.Std(), cfg.ClickHouse.ReadTimeout.Std(), cfg.ClickHouse.WriteTimeout.Std()),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime.Std()),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS polypulse",
		`CREATE TABLE IF NOT EXISTS polypulse.alerts (
			ts DateTime64(3),
			asset_id String,
			type LowCardinality(String),
			magnitude Float64,
			direction LowCardinality(String),
			reasoning String,
			question String,
			insider_score Float64,
			details String
		) ENGINE=MergeTree ORDER BY (asset_id, ts)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger.Std()),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout.Std(), cfg.Kafka.Producer.ReadTimeout.Std()),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin.Std(), cfg.Kafka.Consumer.BackoffMax.Std()),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAlertPublisher creates the Kafka alert publisher.
func ProvideAlertPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.AlertPublisher {
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.Topic)
}

// ProvideAlertArchive creates the ClickHouse alert archive.
func ProvideAlertArchive(chClient *pkgch.Client, cfg *config.Config) repository.AlertArchive {
	table := cfg.ClickHouse.Table
	if table == "" {
		table = cfg.ClickHouse.Database + ".alerts"
	}
	return internalrepo.NewClickHouseAlertArchive(chClient.DB(), table)
}

// ProvideMarketStream creates the CLOB WebSocket stream.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger, m repository.Metrics) repository.MarketStream {
	return clob.New(clob.Config{
		URL:               cfg.Stream.URL,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout.Std(),
		HeartbeatInterval: cfg.Stream.HeartbeatInterval.Std(),
		ReconnectBase:     cfg.Stream.ReconnectBase.Std(),
		MaxReconnects:     cfg.Stream.MaxReconnects,
		PriceChangePct:    cfg.Stream.PriceChangePct,
		EventBuffer:       cfg.Stream.EventBuffer,
	}, log, m)
}

// ProvideDetector creates the anomaly detector.
func ProvideDetector(cfg *config.Config, log *applogger.Logger) *anomaly.Detector {
	return anomaly.New(anomaly.Config{
		FlashWindow:       cfg.Detection.FlashMoveWindow.Std(),
		FlashThreshold:    cfg.Detection.FlashMovePct,
		WhaleMinNotional:  cfg.Detection.WhaleNotional,
		SpikeRecentWindow: cfg.Detection.VolumeRecentWindow.Std(),
		SpikeBaseWindow:   cfg.Detection.VolumeBaseWindow.Std(),
		SpikeMultiple:     cfg.Detection.VolumeSpikeFactor,
		SpreadWindow:      cfg.Detection.SpreadWindow.Std(),
		SpreadContraction: cfg.Detection.SpreadCollapsePct,
		ImbalanceRatio:    cfg.Detection.ImbalanceRatio,
		Cooldown:          cfg.Detection.AlertCooldown.Std(),
	}, log)
}

// ProvideVelocityMonitor creates the per-market velocity monitor.
func ProvideVelocityMonitor(cfg *config.Config) *velocity.MarketMonitor {
	return velocity.NewMarketMonitor(velocity.Config{
		MinDataPoints:   cfg.Velocity.MinDataPoints,
		ZScoreThreshold: cfg.Velocity.ZScoreThreshold,
		SampleWindow:    cfg.Velocity.SampleWindow.Std(),
	})
}

// ProvideMarketTitles creates the Gamma metadata service.
func ProvideMarketTitles(cfg *config.Config, log *applogger.Logger) repository.MarketTitles {
	var store cache.BytesCache
	if cfg.Metadata.Redis.Enabled {
		store = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Metadata.Redis.Addr,
			Password: cfg.Metadata.Redis.Password,
			DB:       cfg.Metadata.Redis.DB,
		})
	} else {
		store = cache.NewTTLCache()
	}
	return metadata.New(metadata.Config{
		GammaURL: cfg.Metadata.GammaURL,
		CacheTTL: cfg.Metadata.CacheTTL.Std(),
		Timeout:  cfg.Metadata.Timeout.Std(),
	}, store, log)
}

// ProvideAlertRouter creates the downstream alert router.
func ProvideAlertRouter(
	pub repository.AlertPublisher,
	archive repository.AlertArchive,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.AlertRouter {
	return usecase.NewAlertRouter(pub, archive, m, log, cfg.Backend.Type)
}

// ProvideAlertPipeline creates the async delivery pipeline.
func ProvideAlertPipeline(router *usecase.AlertRouter, m repository.Metrics, cfg *config.Config) *mid.AlertPipeline {
	opts := []mid.PipelineOption{}
	if cfg.Detection.PipelineBuffer > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Detection.PipelineBuffer))
	}
	return mid.NewAlertPipeline(router, m, opts...)
}

// ProvideMarketMonitor creates the orchestrator.
func ProvideMarketMonitor(
	cfg *config.Config,
	stream repository.MarketStream,
	detector *anomaly.Detector,
	vel *velocity.MarketMonitor,
	pipeline *mid.AlertPipeline,
	titles repository.MarketTitles,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.MarketMonitor {
	return usecase.NewMarketMonitor(usecase.MonitorConfig{
		CleanupInterval: cfg.Detection.CleanupInterval.Std(),
		RecentAlerts:    cfg.Detection.RecentAlertsHistory,
	}, stream, detector, vel, pipeline, titles, m, log)
}

// ProvideKafkaAlertsHandler registers the archival handler for the alerts topic.
func ProvideKafkaAlertsHandler(archive repository.AlertArchive, m repository.Metrics, cfg *config.Config) *usecase.KafkaAlertsHandler {
	return usecase.NewKafkaAlertsHandler(cfg.Kafka.Topic, archive, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	monitor *usecase.MarketMonitor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaAlertsHandler,
	chClient *pkgch.Client,
	router *usecase.AlertRouter,
	titles repository.MarketTitles,
	log *applogger.Logger,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, monitor, consumer, kh, chClient)
	app.Router = router
	app.SetHTTPHandler(api.NewAlertsEchoHandler(log, monitor, titles))
	return app
}
