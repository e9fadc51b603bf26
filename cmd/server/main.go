package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/equalsplit/internal/api/rest"
	"github.com/mmynk/equalsplit/internal/api/rpc"
	"github.com/mmynk/equalsplit/internal/auth"
	"github.com/mmynk/equalsplit/internal/config"
	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/lock"
	"github.com/mmynk/equalsplit/internal/metrics"
	"github.com/mmynk/equalsplit/internal/middleware"
	"github.com/mmynk/equalsplit/internal/service"
	"github.com/mmynk/equalsplit/internal/storage"
	"github.com/mmynk/equalsplit/internal/storage/memory"
	"github.com/mmynk/equalsplit/internal/storage/sqlite"
	"github.com/mmynk/equalsplit/pkg/logging"
)

// Tokens are issued elsewhere; the duration only matters for Generate.
const tokenDuration = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.Info("Configuration loaded", "config", cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	m := metrics.New()
	opts := []service.Option{
		service.WithLocker(locker),
		service.WithPublisher(publisher),
		service.WithMetrics(m),
	}
	ledger := service.NewLedgerService(store, opts...)
	groups := service.NewGroupService(store, opts...)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	handler := newRouter(cfg, m, jwtManager, ledger, groups)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		// Wrap with h2c for HTTP/2 without TLS (required for Connect)
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost:%s", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server", "timeout", cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "memory" {
		slog.Warn("Using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("Storage initialized", "database", cfg.DBPath)
	return store, nil
}

func newLocker(cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.LockBackend != "redis" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close Redis client", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("failed to reach Redis at %s: %w", cfg.RedisAddr, err)
	}

	locker, err := lock.NewRedis(client, lock.Options{
		Expiry:      cfg.LockExpiry,
		Tries:       cfg.LockTries,
		RetryDelay:  cfg.LockRetryDelay,
		DriftFactor: lock.DefaultOptions().DriftFactor,
	})
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	slog.Info("Using Redis group lock", "address", cfg.RedisAddr)
	return locker, closeClient, nil
}

func newPublisher(cfg *config.Config) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		slog.Info("AMQP_URL not set, ledger events are not published")
		return events.Nop{}, func() {}, nil
	}

	publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	slog.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("Failed to close AMQP publisher", "error", err)
		}
	}, nil
}

func newRouter(cfg *config.Config, m *metrics.Metrics, jwtManager *auth.JWTManager, ledger *service.LedgerService, groups *service.GroupService) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(m))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		ExposedHeaders:   []string{"Connect-Protocol-Version", "Connect-Timeout-Ms"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())

	r.Mount("/api", rest.NewHandler(ledger, groups).Routes(jwtManager))

	rpcPath, rpcHandler := rpc.NewHandler(ledger, middleware.RPCInterceptors(jwtManager))
	r.Handle(rpcPath+"*", rpcHandler)

	return r
}
