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

	"rolloutgate/internal/api"
	"rolloutgate/internal/cache"
	"rolloutgate/internal/config"
	"rolloutgate/internal/metrics"
	"rolloutgate/internal/model"
	"rolloutgate/internal/repository"
	"rolloutgate/internal/service"
	"rolloutgate/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	store := repository.NewFlagStore(db)
	observer := metrics.NewPrometheusObserver()

	evaluator := service.NewFlagEvaluator(store, cache.New(cfg.Cache.TTL), observer)
	coordinator := service.NewRollbackCoordinator(evaluator, store, observer)

	if cfg.Auth.SigningKey != "" {
		service.SigningKey = []byte(cfg.Auth.SigningKey)
	}
	authSvc := service.NewAuthService(rdb, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	// Seed catalog flags that have no row yet, so every flag is visible
	// and adjustable from the start.
	if err := evaluator.InitializeDefaultFlags(ctx); err != nil {
		return fmt.Errorf("failed to initialize default flags: %w", err)
	}

	monitor := service.NewRolloutMonitor(evaluator, service.NewLogAlerter(), observer, service.MonitorConfig{
		Interval:           cfg.Monitor.Interval,
		RapidChangeCount:   cfg.Monitor.RapidChangeCount,
		RapidChangeWindow:  cfg.Monitor.RapidChangeWindow,
		StuckAfter:         cfg.Monitor.StuckAfter,
		OverrideAlertCount: cfg.Monitor.OverrideAlertCount,
	})

	plans := make([]service.GraduationPlan, 0, len(cfg.Graduation.Plans))
	for _, p := range cfg.Graduation.Plans {
		plans = append(plans, service.GraduationPlan{
			FlagKey:   p.FlagKey,
			Target:    p.Target,
			Increment: p.Increment,
		})
	}
	graduator := service.NewRolloutGraduator(evaluator, plans, cfg.Graduation.Interval)

	go func() {
		logger.Info("starting rollout monitor")
		monitor.Run(ctx)
	}()
	go func() {
		logger.Info("starting rollout graduator")
		graduator.Run(ctx)
	}()

	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	api.RegisterRoutes(
		r,
		api.NewFlagHandler(evaluator),
		api.NewRollbackHandler(coordinator),
		api.NewAuthHandler(authSvc),
		rdb,
		cfg.RateLimit.RequestsPerSecond,
		cfg.Server.Environment,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Auto-migrate for dev convenience; production deployments should use a
	// proper migration tool like golang-migrate.
	err = db.AutoMigrate(
		&model.FlagStatus{},
		&model.UserOverride{},
		&model.RollbackLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
