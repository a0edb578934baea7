package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"whisper.relay/config"
	"whisper.relay/internal/api"
	"whisper.relay/internal/bot"
	"whisper.relay/internal/i18n"
	"whisper.relay/internal/notify"
	"whisper.relay/internal/store"
	"whisper.relay/internal/whisper"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config error")
	}

	logger := newLogger(cfg)

	ctx := context.Background()

	st := initStore(ctx, cfg, logger)
	defer st.Close()

	catalog, err := i18n.Load(cfg.Bot.DefaultLang)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading locales failed")
	}

	// Backstop for calls made without a deadline, such as getMe at startup.
	httpClient := &http.Client{Timeout: cfg.Delivery.Timeout + 5*time.Second}
	transport, err := bot.NewTelegramTransport(cfg.Bot.Token, cfg.Bot.APIEndpoint, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram connection failed")
	}
	logger.Info().Str("bot", transport.BotName()).Msg("connected to Telegram")

	dispatcher := notify.NewDispatcher(transport, cfg.Bot.AdminIDs, catalog.Default(), logger, notify.Options{
		Timeout:     cfg.Delivery.ObserverTimeout,
		Concurrency: cfg.Delivery.ObserverConcurrency,
	})
	svc := whisper.NewService(st, bot.NewDMCourier(transport, catalog), logger, whisper.Options{
		StoreTimeout:    cfg.Store.Timeout,
		DeliveryTimeout: cfg.Delivery.Timeout,
	})
	updates := bot.NewRouter(svc, dispatcher, transport, catalog, transport.BotName(), logger)

	handler := api.NewHandler(updates, st, api.Info{
		BotName:   transport.BotName(),
		StoreType: cfg.Store.Type,
		Version:   version,
	}, cfg.Server.WebhookSecret, logger)
	router := api.SetupRouter(handler, logger)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("store", cfg.Store.Type).
			Int("observers", len(cfg.Bot.AdminIDs)).
			Msg("starting whisper relay")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	if url := cfg.WebhookURL(); url != "" {
		webhookCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := transport.SetWebhook(webhookCtx, url)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("webhook registration failed")
		} else {
			logger.Info().Str("path", cfg.WebhookPath()).Msg("webhook registered")
		}
	} else {
		logger.Warn().Msg("WEBHOOK_BASE_URL not set, skipping webhook registration")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Observer notifications outlive the webhook request that started them.
	updates.Wait()

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

func initStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.Store {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis")
		return st
	case "sqlite":
		st, err := store.NewSQLiteStore(ctx, cfg.Store.SQLite.Path)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.Store.SQLite.Path).Msg("opened SQLite database")
		return st
	case "postgres":
		logger.Info().Msg("running database migrations...")
		if err := store.RunPostgresMigrations(cfg.Store.Postgres.URL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		st, err := store.NewPostgresStore(ctx, cfg.Store.Postgres.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return st
	default:
		logger.Warn().Msg("using in-memory store, whispers are lost on restart")
		return store.NewMemoryStore()
	}
}
