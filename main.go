package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"alpaca-trading-bot/config"
	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/api"
	"alpaca-trading-bot/internal/events"
	"alpaca-trading-bot/internal/lifecycle"
	"alpaca-trading-bot/internal/logging"
	"alpaca-trading-bot/internal/notification"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gen-config" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatal().Err(err).Msg("Failed to write sample config")
		}
		log.Info().Msg("Wrote config.json")
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize broker gateway
	var broker alpaca.Broker
	if cfg.AlpacaConfig.MockMode {
		mock := alpaca.NewMockClient()
		mock.AutoFillMarket = true
		broker = mock
		logger.Warn().Msg("Mock mode enabled, orders stay in memory")
	} else {
		broker = alpaca.NewClient(
			cfg.AlpacaConfig.APIKey,
			cfg.AlpacaConfig.SecretKey,
			cfg.AlpacaConfig.BaseURL,
			cfg.AlpacaConfig.DataURL,
			logger,
		)
		logger.Info().Str("base_url", cfg.AlpacaConfig.BaseURL).Msg("Alpaca client initialized")
	}

	// Initialize notification manager
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager()

		// Add Telegram notifier
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}

		// Add Discord notifier
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    cfg.NotificationConfig.Discord.Enabled,
			}))
			logger.Info().Msg("Discord notifications enabled")
		}

		notifyManager.SubscribeToBus(eventBus)
	}

	// Initialize the order lifecycle orchestrator
	lifecycleCfg := lifecycle.Config{
		CheckMarketClock:     cfg.TradingConfig.CheckMarketClock,
		CancelEntryOnTimeout: cfg.TradingConfig.CancelEntryOnTimeout,
		Strategy:             lifecycle.Capability(cfg.TradingConfig.ExitStrategy),
		FillMaxAttempts:      cfg.TradingConfig.FillMaxAttempts,
		FillInterval:         cfg.TradingConfig.FillInterval,
		Supervisor: lifecycle.SupervisorConfig{
			Interval:    cfg.TradingConfig.SupervisorInterval,
			MaxPolls:    cfg.TradingConfig.SupervisorMaxPolls,
			MaxDuration: cfg.TradingConfig.SupervisorMaxTime,
			MaxFailures: cfg.TradingConfig.SupervisorMaxErrors,
		},
	}
	orchestrator, err := lifecycle.NewOrchestrator(broker, eventBus, logger, lifecycleCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build orchestrator")
	}
	logger.Info().
		Str("exit_strategy", cfg.TradingConfig.ExitStrategy).
		Int("fill_max_attempts", cfg.TradingConfig.FillMaxAttempts).
		Msg("Orchestrator initialized")

	// Start the HTTP API
	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: cfg.LoggingConfig.JSONFormat,
	}, orchestrator, eventBus, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop supervision; exit orders at the broker stay live.
	orchestrator.Close()

	logger.Info().Msg("Shutdown complete")
}
