package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mangabot/internal/bus"
	"mangabot/internal/channel"
	"mangabot/internal/dedupe"
	"mangabot/internal/domain"
	"mangabot/internal/metrics"
	"mangabot/internal/server"

	"github.com/spf13/cobra"
)

const (
	busBufferSize   = 100
	dedupeTTL       = 10 * time.Minute
	dedupeMaxKeys   = 10000
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Messenger webhook and run enabled channels",
		Long:  "Starts the HTTP server (webhook, /healthz, metrics), the Telegram poller if enabled and the bot loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.General, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	messageBus := bus.New(busBufferSize, logger)

	var (
		webhooks []server.Mounter
		pollers  []domain.Channel
		channels []domain.Channel
	)

	if cfg.Channels.Messenger.Enabled {
		seen := dedupe.New(dedupeTTL, dedupeMaxKeys)
		defer seen.Close()
		messenger := channel.NewMessenger(channel.MessengerChannelConfig{
			Config: cfg.Channels.Messenger,
			Dedupe: seen,
			Logger: logger,
		})
		// Start only attaches the bus, so the webhook is live before we listen.
		if err := messenger.Start(ctx, messageBus); err != nil {
			return fmt.Errorf("messenger channel: %w", err)
		}
		webhooks = append(webhooks, messenger)
		channels = append(channels, messenger)
		logger.Info("messenger channel enabled", "webhook", cfg.Channels.Messenger.WebhookPath)
	}

	if cfg.Channels.Telegram.Enabled {
		telegram := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Welcome:   a.texts.ResetPrompt,
			Logger:    logger,
		})
		pollers = append(pollers, telegram)
		channels = append(channels, telegram)
		logger.Info("telegram channel enabled")
	}

	if len(channels) == 0 {
		return errors.New("no channels enabled: set channels.messenger.enabled or channels.telegram.enabled")
	}

	loop := a.newLoop(messageBus, channels)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	for _, ch := range pollers {
		go func() {
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}()
	}

	metricsEndpoint := ""
	if cfg.Metrics.Enabled {
		metricsEndpoint = cfg.Metrics.Endpoint
	}
	router := server.NewRouter(server.RouterConfig{
		Webhooks:        webhooks,
		MetricsEndpoint: metricsEndpoint,
		Metrics:         metrics.Collector.Handler(),
		Logger:          logger,
	})

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		stop()
		<-loopDone
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr(), err)
	}
	logger.Info("mangabot started. Press Ctrl+C to stop.", "addr", ln.Addr().String(), "site", cfg.Site.BaseURL)

	srvErr := server.Run(ctx, server.New(cfg.Server.Addr(), router), ln)

	stop()
	logger.Info("shutting down...")
	for _, ch := range channels {
		if err := ch.Stop(); err != nil {
			logger.Warn("channel stop", "channel", ch.Name(), "err", err)
		}
	}

	select {
	case <-loopDone:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, abandoning in-flight deliveries")
	}
	messageBus.Close()

	return srvErr
}
