package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"PolyPulse/internal/usecase"
	pkgch "PolyPulse/pkg/clickhouse"
	"PolyPulse/pkg/config"
	xhttp "PolyPulse/pkg/http"
	pkgkafka "PolyPulse/pkg/kafka"
	applogger "PolyPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	monitor     *usecase.MarketMonitor
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler

	// Router owns the downstream publisher/archive; closed on shutdown.
	Router *usecase.AlertRouter
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	monitor *usecase.MarketMonitor,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		monitor:  monitor,
		consumer: consumer,
		kh:       kh,
		chClient: chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout.Std(), a.cfg.Server.WriteTimeout.Std(), a.cfg.Server.ShutdownTimeout.Std()),
	)

	// Start the monitor; the stream reconnects on its own, so a cold
	// endpoint does not abort startup.
	if err := a.monitor.Start(ctx); err != nil {
		l.Error("monitor start error", applogger.Error(err))
		return err
	}
	if len(a.cfg.Stream.Assets) > 0 {
		if err := a.monitor.AddMarkets(ctx, a.cfg.Stream.Assets...); err != nil {
			l.Warn("initial subscribe error", applogger.Error(err))
		}
	}
	l.Info("monitor started",
		applogger.Strings("assets", a.cfg.Stream.Assets),
		applogger.String("backend", a.cfg.Backend.Type),
	)

	// Archival consumer drains the alerts topic into ClickHouse.
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return err
	}
	l.Info("shutting down...")

	// Stop the monitor first so no new alerts chase the closing backends.
	if err := a.monitor.Stop(); err != nil {
		l.Warn("monitor stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.Router != nil {
		a.Router.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
