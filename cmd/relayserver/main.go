// Package main runs the chat relay: the HTTP and WebSocket surface, the
// optional telnet lobby, and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/config"
	"github.com/cory-johannsen/chatrelay/internal/httpapi"
	"github.com/cory-johannsen/chatrelay/internal/identity"
	"github.com/cory-johannsen/chatrelay/internal/observability"
	"github.com/cory-johannsen/chatrelay/internal/relay"
	"github.com/cory-johannsen/chatrelay/internal/server"
	"github.com/cory-johannsen/chatrelay/internal/storage/postgres"
	"github.com/cory-johannsen/chatrelay/internal/transport/telnet"
	"github.com/cory-johannsen/chatrelay/internal/transport/websocket"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting chatrelay",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.Bool("telnet", cfg.Telnet.Enabled),
		zap.Bool("grpc", cfg.GRPC.Enabled),
		zap.Bool("database", cfg.Database.Enabled),
	)

	ctx := context.Background()
	metrics := observability.NewMetrics()
	registry := chat.NewRegistry(
		chat.WithCapacity(cfg.Relay.TopicCapacity),
		chat.WithLogger(logger.Named("registry")),
		chat.WithMetrics(metrics),
	)

	if cfg.Seed.RoomsFile != "" {
		rooms, err := chat.LoadSeed(cfg.Seed.RoomsFile)
		if err != nil {
			logger.Fatal("loading seed rooms", zap.String("path", cfg.Seed.RoomsFile), zap.Error(err))
		}
		created := registry.Seed(rooms)
		logger.Info("seed rooms created", zap.Int("count", len(created)))
	}

	relayOpts := []relay.Option{
		relay.WithLogger(logger.Named("relay")),
		relay.WithMetrics(metrics),
	}

	policy, invalid := websocket.NewOriginPolicy(cfg.CORS.AllowedOrigins)
	for _, origin := range invalid {
		logger.Warn("ignoring malformed allowed origin", zap.String("origin", origin))
	}
	upgrader := websocket.NewUpgrader(websocket.OptionsFromConfig(cfg.Relay), policy, logger.Named("websocket"))

	lifecycle := server.NewLifecycle(logger, server.WithStopTimeout(cfg.Server.ShutdownTimeout))

	var health *server.HealthService
	if cfg.GRPC.Enabled {
		health = server.NewHealthService(cfg.GRPC, logger.Named("grpc"))
	}

	var accounts httpapi.AccountStore
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		accounts = postgres.NewAccountRepository(pool.DB())
		if health != nil {
			lifecycle.Add("postgres", server.NewDBHealthService("postgres", pool, health,
				30*time.Second, 5*time.Second, logger.Named("postgres")))
		}
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Registry:     registry,
		Upgrader:     upgrader,
		Identity:     identity.CookieResolver{},
		Accounts:     accounts,
		Metrics:      metrics,
		Logger:       logger.Named("http"),
		CORS:         cfg.CORS,
		TimeWindow:   cfg.TimeWindow,
		StaticDir:    cfg.Server.StaticDir,
		RelayOptions: relayOpts,
	})
	if err != nil {
		logger.Fatal("building router", zap.Error(err))
	}
	lifecycle.Add("http", server.NewHTTPService(cfg.Server, router, registry, logger.Named("http")))

	if cfg.Telnet.Enabled {
		lobby := telnet.NewLobbyHandler(registry, logger.Named("lobby"), telnet.WithRelayOptions(relayOpts...))
		acceptor := telnet.NewAcceptor(cfg.Telnet, int(cfg.Relay.MaxMessageSize), lobby, logger.Named("telnet"))
		lifecycle.Add("telnet", &server.FuncService{
			StartFn: func(context.Context) error { return acceptor.ListenAndServe() },
			StopFn: func(context.Context) error {
				acceptor.Stop()
				return nil
			},
		})
	}

	if health != nil {
		lifecycle.Add("grpc", health)
	}

	logger.Info("chatrelay initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
