package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/config"
	"github.com/kailas-cloud/synapse/internal/db"
	"github.com/kailas-cloud/synapse/internal/db/memory"
	dbRedis "github.com/kailas-cloud/synapse/internal/db/redis"
	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	logpkg "github.com/kailas-cloud/synapse/internal/logger"
	"github.com/kailas-cloud/synapse/internal/metrics"
	gooddealrepo "github.com/kailas-cloud/synapse/internal/repository/gooddeal"
	tablerepo "github.com/kailas-cloud/synapse/internal/repository/table"
	chiTransport "github.com/kailas-cloud/synapse/internal/transport/chi"
	"github.com/kailas-cloud/synapse/internal/transport/peerhttp"
	healthuc "github.com/kailas-cloud/synapse/internal/usecase/health"
	"github.com/kailas-cloud/synapse/internal/usecase/membership"
	"github.com/kailas-cloud/synapse/internal/usecase/replication"
	"github.com/kailas-cloud/synapse/internal/usecase/routing"
	"github.com/kailas-cloud/synapse/internal/usecase/scoring"
	searchuc "github.com/kailas-cloud/synapse/internal/usecase/search"
	"github.com/kailas-cloud/synapse/internal/usecase/tags"
	"github.com/kailas-cloud/synapse/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Node.Address, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	proto := cfg.Node.Protocol()

	logger.Info("Starting synapse node",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Strings("peers", cfg.Node.Peers),
		zap.Int("ttl", proto.TTL),
		zap.Float64("replication_budget", proto.ReplicationBudget),
		zap.String("partitioner", cfg.Node.Partitioner),
	)

	store, err := newStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register protocol metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	resolver, err := routing.New(routing.Partitioner(cfg.Node.Partitioner), nil)
	if err != nil {
		logger.Fatal("Invalid partitioner", zap.Error(err))
	}

	// Good-deal record survives restarts through the store.
	scorer := scoring.New(scoring.History{}, proto.GoodDealThreshold, logger).
		WithStore(ctx, gooddealrepo.New(store))

	registry := tags.New(logger).WithRetention(proto.TagRetention)
	go registry.Run(ctx, time.Duration(cfg.Node.SweepIntervalSec)*time.Second)

	initial := make([]peer.ID, 0, len(cfg.Node.Peers))
	for _, p := range cfg.Node.Peers {
		initial = append(initial, peer.ID(p))
	}
	members := membership.New(scorer, logger, initial...)

	engine := searchuc.New(
		registry, members, resolver, replication.New(), scorer,
		tablerepo.New(store), cfg.Node.Address, logger,
	).WithDefaults(proto.TTL, proto.ReplicationBudget).WithParallelism(proto.Parallelism)
	if cfg.Node.Forwarding {
		peers := peerhttp.New(nil)
		engine = engine.WithForwarder(peers, proto.HopTimeout)
		go announce(ctx, peers, cfg.Node.Address, cfg.Node.Peers, proto.HopTimeout, logger)
	}

	healthSvc := healthuc.New(store, members)

	server := chiTransport.NewServer(engine, members, healthSvc, logger).
		WithAPIKeys(cfg.Auth.APIKeys).
		WithBaseContext(ctx)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Stop in-flight FINDs and the tag sweeper, then wait for them.
	stop()
	server.Wait()

	logger.Info("Node stopped gracefully")
}

// announce sends a JOIN for this node to every initial peer.
func announce(
	ctx context.Context, peers *peerhttp.Client, self string, initial []string,
	timeout time.Duration, logger *zap.Logger,
) {
	m := message.Join{Peer: peer.ID(self), Source: self}
	for _, addr := range initial {
		if addr == self {
			continue
		}
		hopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := peers.Join(hopCtx, addr, m)
		cancel()
		if err != nil {
			logger.Warn("Failed to announce to peer", zap.String("peer", addr), zap.Error(err))
			continue
		}
		logger.Info("Announced to peer", zap.String("peer", addr))
	}
}

func newStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
