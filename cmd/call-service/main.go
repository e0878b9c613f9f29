package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	intDatabase "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/database"
	callHandler "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/handler/http/call"
	wsHandler "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/handler/ws"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/middleware"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/cockroach"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/memory"
	redisRepo "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/redis"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/sqlite"
	callService "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/service/call"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/config"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
	pkgDatabase "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/database"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/jwt"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Call service stopped", zap.Error(err))
	}
	logger.Info("Call service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	g, gctx := errgroup.WithContext(ctx)
	required := map[string]middleware.HealthChecker{}
	optional := map[string]middleware.HealthChecker{}

	// 1. Call store
	var (
		repo  callService.CallRepository
		users callService.UserDirectory
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("Using in-memory call store; state is lost on restart")
		repo = memory.NewCallStore()
		users = memory.NewUserStore()
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer store.Close()
		logger.Info("Opened SQLite call store", zap.String("path", cfg.SQLite.Path))

		repo, users = store, store
		required["database"] = store.Ping
	default:
		db, err := pkgDatabase.NewCockroachDB(ctx, cfg.Database.DatabaseURL(), pkgDatabase.PoolConfig{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fmt.Errorf("connect to CockroachDB: %w", err)
		}
		defer db.Close()
		if err := cockroach.EnsureSchema(ctx, db.Pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("Connected to CockroachDB",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))

		repo = cockroach.NewCallRepository(db.Pool)
		users = cockroach.NewUserRepository(db.Pool)
		required["database"] = db.Ping
		g.Go(func() error {
			db.ReportStats(gctx, appMetrics, 15*time.Second)
			return nil
		})
	}

	// 2. Redis: change fan-out, presence, token revocation and rate limits
	var (
		publisher   callService.ChangePublisher
		subscriber  wsHandler.ChangeSubscriber
		presence    wsHandler.PresenceTracker
		revocation  middleware.RevocationChecker
		rateCounter middleware.RateCounter
	)
	if cfg.Redis.Enabled {
		redisClient := intDatabase.NewRedisClient(&intDatabase.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		}, appMetrics)
		defer redisClient.Close()

		if err := redisClient.HealthCheck(ctx); err != nil {
			logger.Warn("Redis unreachable at startup, running degraded", zap.Error(err))
		} else {
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
		g.Go(func() error {
			redisClient.StartHealthCheck(gctx, constants.RedisHealthCheckInterval)
			return nil
		})

		events := redisRepo.NewCallEventsRepository(redisClient, cfg.Calls.EventConnectionBuffer)
		publisher, subscriber = events, events
		presence = redisRepo.NewPresenceRepository(redisClient)
		revocation = middleware.NewBlacklistRevocationChecker(redisRepo.NewTokenBlacklistRepository(redisClient))
		rateCounter = redisClient
		optional["redis"] = redisClient.HealthCheck
	} else {
		if cfg.IsProduction() {
			logger.Warn("Redis disabled in production; call events only reach clients of this instance")
		}
		broker := memory.NewBroker(cfg.Calls.EventConnectionBuffer)
		publisher, subscriber = broker, broker
	}

	// 3. Service and handlers
	svc := callService.NewService(repo, users, publisher,
		callService.WithMetrics(appMetrics),
		callService.WithHistoryLimits(cfg.Calls.HistoryDefaultLimit, cfg.Calls.HistoryMaxLimit),
	)

	allowedOrigins := middleware.AllowedOrigins()
	hubOpts := []wsHandler.HubOption{
		wsHandler.WithHubMetrics(appMetrics),
		wsHandler.WithMaxConnections(cfg.Calls.MaxEventConnections),
		wsHandler.WithSendBuffer(cfg.Calls.EventConnectionBuffer),
		wsHandler.WithAllowedOrigins(allowedOrigins),
	}
	if presence != nil {
		hubOpts = append(hubOpts, wsHandler.WithPresence(presence))
	}
	hub := wsHandler.NewCallEventsHub(svc, subscriber, hubOpts...)
	defer hub.Close()

	var initiateGuards []gin.HandlerFunc
	if cfg.Calls.InitiateRateLimit > 0 {
		limiter := middleware.NewRateLimiter("call_initiate", rateCounter, cfg.Calls.InitiateRateLimit, cfg.Calls.InitiateRateWindow)
		initiateGuards = append(initiateGuards, limiter.Middleware())
	}

	// 4. Router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(allowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName, required, optional))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocation))

	// the events stream is long-lived and must not inherit the REST deadline
	v1.GET("/calls/ws/events", hub.ServeWS)

	api := v1.Group("")
	api.Use(middleware.Timeout(constants.DefaultTimeout))
	callHandler.NewHandler(svc).RegisterRoutes(api, initiateGuards...)

	// 5. Serve until a signal arrives
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Call service starting",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store),
			zap.Bool("redis", cfg.Redis.Enabled),
			zap.String("events", "/v1/calls/ws/events"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down call service")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
