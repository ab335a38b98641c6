// File: catalog-rules-service/cmd/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-rules-service/internal/api"
	"catalog-rules-service/internal/config"
	"catalog-rules-service/internal/engine"
	"catalog-rules-service/internal/logger"
	"catalog-rules-service/internal/rule"
	"catalog-rules-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultAppName = "CatalogRulesService"
)

func main() {
	// A missing .env is fine; the environment may be set some other way.
	envErr := godotenv.Load()

	// --- Configuration Loading ---
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logger.New(logger.Config{AppName: defaultAppName, Env: "development"})
		bootLogger.Fatal().Err(err).Msg("error loading configuration")
	}

	log := logger.New(logger.Config{AppName: defaultAppName, Env: cfg.AppEnv, Level: cfg.LogLevel})
	if envErr != nil {
		log.Info().Msg(".env file not found, relying on system environment variables")
	}
	log.Info().Str("app_env", cfg.AppEnv).Str("log_level", cfg.LogLevel).Msg("configuration loaded")

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database connection")
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("database connection established")

	dbStore := store.NewPostgresStore(db)

	// --- Rule Engine ---
	categories, err := setupCategoryLookup(cfg.Rules, dbStore, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load category cache")
	}
	applier := rule.NewApplier(categories, rule.NewValueApplier(), log)
	runner := engine.NewRunner(dbStore, applier, cfg.Rules.MaxBatchSize, log)

	// --- Initialize API Handlers ---
	httpAPIHandler := api.NewHTTPHandler(dbStore, dbStore, runner, log) // dbStore implements both interfaces
	grpcAPIHandler := api.NewGRPCHandler(runner, log)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, log)
	registerHealthCheck(httpRouter, log, db)
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		log.Info().Str("port", cfg.HttpServer.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe error")
		}
		log.Info().Msg("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer, healthServer := setupGRPCServer(log, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GrpcServer.Port).Msg("failed to listen for gRPC")
	}

	go func() {
		log.Info().Str("port", cfg.GrpcServer.Port).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatal().Err(err).Msg("gRPC server Serve error")
		}
		log.Info().Msg("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(log, httpServer, grpcServer, healthServer, dbStore, shutdownComplete)

	<-shutdownComplete
	log.Info().Msg("service shutdown sequence finished")
}

// setupCategoryLookup returns the store itself, or a cache warmed from it
// when RULES_CATEGORY_CACHE is enabled.
func setupCategoryLookup(cfg config.RulesConfig, dbStore *store.PostgresStore, log zerolog.Logger) (rule.CategoryLookup, error) {
	if !cfg.CategoryCache {
		return dbStore, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cache, err := store.LoadCategoryCache(ctx, dbStore)
	if err != nil {
		return nil, err
	}
	log.Info().Int("categories", cache.Len()).Msg("category cache loaded")
	return cache, nil
}

func setupBaseMiddleware(router *chi.Mux, log zerolog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	log.Debug().Msg("base HTTP middleware registered")
}

// requestLogger logs one line per request through zerolog instead of chi's
// default stdlib logger.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func registerHealthCheck(router *chi.Mux, log zerolog.Logger, db *sql.DB) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbStatus := "healthy"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("health check DB ping failed")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK) // Always 200, but payload indicates detailed status
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
		})
	})
	log.Debug().Str("path", healthPath).Msg("HTTP health check registered")
}

// unaryLogger logs every unary RPC with its status code.
func unaryLogger(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("grpc request")
		return resp, err
	}
}

func setupGRPCServer(log zerolog.Logger, grpcAPIHandler *api.GRPCHandler) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(log)))

	api.RegisterRuleServiceServer(s, grpcAPIHandler)
	log.Debug().Str("service", api.RuleServiceName).Msg("gRPC service registered")

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.RuleServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	// Enable gRPC server reflection (useful for tools like grpcurl).
	reflection.Register(s)

	return s, healthServer
}

func waitForShutdown(
	log zerolog.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	healthServer *health.Server,
	dbStore *store.PostgresStore,
	shutdownComplete chan struct{},
) {
	defer close(shutdownComplete)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-sigChan
	log.Info().Str("signal", receivedSignal.String()).Msg("starting graceful shutdown")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	healthServer.Shutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server graceful shutdown failed")
	} else {
		log.Info().Msg("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		log.Info().Msg("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		log.Warn().Err(shutdownCtx.Err()).Msg("gRPC server graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}

	if err := dbStore.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing database connection")
	}

	log.Info().Msg("graceful shutdown sequence completed")
}
