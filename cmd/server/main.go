package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/internal/blacklist"
	"warden/internal/bot"
	"warden/internal/commands"
	"warden/internal/config"
	"warden/internal/database/boltstore"
	"warden/internal/database/sqlitestore"
	"warden/internal/enforce"
	"warden/internal/gateway"
	"warden/internal/metrics"
	"warden/internal/middleware"
	"warden/internal/news"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/propagate"
	"warden/internal/registry"
	"warden/internal/spam"
	"warden/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// stores bundles the backend-specific store views behind the domain interfaces.
type stores struct {
	blacklist blacklist.Store
	flags     registry.FlagSource
	flagStore commands.FlagStore
	news      news.Store
	close     func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.DatabaseBackend {
	case "sqlite":
		db, err := sqlitestore.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		srv := db.ServerStore()
		return &stores{
			blacklist: db.BlacklistStore(),
			flags:     srv,
			flagStore: srv,
			news:      db.NewsStore(),
			close:     db.Close,
		}, nil
	default:
		db, err := boltstore.Open(boltstore.Options{Path: cfg.DatabasePath})
		if err != nil {
			return nil, err
		}
		srv := db.ServerStore()
		return &stores{
			blacklist: db.BlacklistStore(),
			flags:     srv,
			flagStore: srv,
			news:      db.NewsStore(),
			close:     db.Close,
		}, nil
	}
}

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting Warden")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	db, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.DatabaseBackend).
			Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}
	defer db.close()
	log.Info().Str("backend", cfg.DatabaseBackend).Str("path", cfg.DatabasePath).Msg("Database opened")

	client := platform.NewRESTClient(cfg.APIBaseURL, cfg.Token)

	// The gateway authenticates with the same token, so the identity behind
	// it is ours. The id lets the pipeline skip the bot's own messages.
	self, err := client.FetchUser(ctx, "@me")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to identify bot user")
	}
	log.Info().Str("user", self.ID).Str("username", self.Username).Msg("Authenticated")

	reg := registry.New(db.flags)
	notifier := notify.New(client, cfg.ServiceChannelID)
	dispatcher := propagate.New(client, reg, notifier, cfg.BanRetentionDays, 16)
	engine := enforce.New(db.blacklist, client, reg, notifier, cfg.BanRetentionDays)
	detector := spam.New(spam.Config{
		BanJoinPeriod:     cfg.BanJoinPeriod,
		SuspiciousTimeout: cfg.SuspiciousTimeout,
		PrimaryServerID:   cfg.PrimaryServerID,
		BotUserID:         self.ID,
		RetentionDays:     cfg.BanRetentionDays,
	}, client, reg, db.flags, db.blacklist, notifier, dispatcher)
	newsSvc := news.NewService(db.news, client)
	cmds := commands.New(cfg.Prefix, cfg.BanRetentionDays, db.blacklist, db.flagStore,
		reg, client, notifier, dispatcher, newsSvc)

	router := bot.New(self.ID, reg, engine, detector, cmds, notifier)

	consumer := gateway.NewConsumer(&gateway.Config{
		Endpoints:   cfg.GatewayEndpoints,
		Token:       cfg.Token,
		Compress:    cfg.Compress,
		MaxInflight: int64(cfg.MaxInflightHandlers),
	}, router)
	consumer.Start(ctx)

	metrics.StartCollector(ctx, metrics.StatsSource{
		BlacklistCount: func() int {
			n, err := db.blacklist.Count(context.Background())
			if err != nil {
				return 0
			}
			return n
		},
		ServerCount:     reg.Count,
		SuspiciousCount: detector.Count,
	}, 30*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !consumer.IsConnected() {
			http.Error(w, "gateway disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics.Collect()); err != nil {
			log.Warn().Err(err).Msg("Failed to encode stats")
		}
	})

	handler := middleware.Logging(log.Logger)(mux)
	srv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: otelhttp.NewHandler(handler, "metrics"),
	}
	go func() {
		log.Info().Str("address", cfg.MetricsAddr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}

	events, bytes := consumer.Stats()
	log.Info().Int64("events", events).Int64("bytes", bytes).Msg("Stopped")
}
