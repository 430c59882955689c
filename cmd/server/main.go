package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/HMasataka/chatrelay/internal/config"
	"github.com/HMasataka/chatrelay/internal/eventbus"
	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/internal/metrics"
	"github.com/HMasataka/chatrelay/pkg/auth"
	"github.com/HMasataka/chatrelay/pkg/chat"
	"github.com/HMasataka/chatrelay/pkg/httpapi"
	"github.com/HMasataka/chatrelay/pkg/presence"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/relay"
	"github.com/HMasataka/chatrelay/pkg/storage"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/HMasataka/chatrelay/pkg/transport/websocket"
	_ "go.uber.org/automaxprocs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a JSON or YAML config file")
		dotEnv     = flag.String("env", ".env", "optional .env file")
	)
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath, DotEnv: *dotEnv})
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logging.New(cfg.Logging)

	db, err := storage.Open(storage.OpenOptions{Path: cfg.Storage.BadgerPath}, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing badger")
		_ = db.Close()
	}()

	store := storage.NewStore(db, cfg.Storage.HistoryLimit, logger)
	gateway := storage.NewGateway(store, storage.NewDiskStager(cfg.Storage.UploadDir))

	bus, err := eventbus.NewInMemoryBus(cfg.Relay.EventWorkers, logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer bus.Stop()

	collector := metrics.New()
	collector.Subscribe(bus)
	defer collector.Unsubscribe(bus)

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	reg := registry.New()
	codec := protocol.NewJSONCodec()

	hub := relay.NewHub(reg,
		auth.NewTokenResolver(issuer),
		presence.New(reg, codec, logger),
		chat.NewRouter(reg, gateway, codec, logger, chat.WithEventBus(bus)),
		codec,
		relay.HubOptions{
			HeartbeatInterval: cfg.Relay.HeartbeatInterval,
			Logger:            logger,
			EventBus:          bus,
		},
	)

	api := httpapi.NewServer(httpapi.Deps{
		Users:         store,
		Groups:        store,
		History:       store,
		Hasher:        auth.NewPasswordHasher(auth.DefaultParams),
		Issuer:        issuer,
		Hub:           hub,
		Metrics:       collector.Handler(),
		UploadDir:     cfg.Storage.UploadDir,
		CookieName:    cfg.Auth.CookieName,
		TokenTTL:      cfg.Auth.TokenTTL,
		AllowedOrigin: cfg.Server.ClientOrigin,
		Conn: websocket.ConnOptions{
			WriteTimeout:   cfg.Relay.WriteTimeout,
			MaxMessageSize: cfg.Relay.MaxMessageSize,
			SendBufferSize: cfg.Relay.SendBufferSize,
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", server.Addr, "heartbeat", cfg.Relay.HeartbeatInterval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by the http server
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("hub shutdown", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("relay stopped")
	return nil
}
