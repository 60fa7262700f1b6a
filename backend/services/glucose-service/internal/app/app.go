package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "glucoseapi/backend/libs/redis"
	"glucoseapi/backend/services/glucose-service/internal/cache"
	"glucoseapi/backend/services/glucose-service/internal/config"
	"glucoseapi/backend/services/glucose-service/internal/db"
	httpserver "glucoseapi/backend/services/glucose-service/internal/http"
	"glucoseapi/backend/services/glucose-service/internal/http/handlers"
	"glucoseapi/backend/services/glucose-service/internal/http/middleware"
	"glucoseapi/backend/services/glucose-service/internal/metrics"
	"glucoseapi/backend/services/glucose-service/internal/repository"
	"glucoseapi/backend/services/glucose-service/internal/service"
)

// App wires glucose-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph. The database schema is created if
// missing; redis is only dialled when an address is configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}

	glucoseRepo := repository.NewGlucoseRepository(sqlDB, logger)
	if err := glucoseRepo.EnsureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	a := &App{db: sqlDB, logger: logger}

	var recordCache service.RecordCache
	if cfg.CacheEnabled() {
		a.redisClient, err = libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		recordCache = cache.NewRecordCache(a.redisClient, cfg.CacheTTL())
		logger.Info("record cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.CacheTTL()))
	}

	m := metrics.New()
	glucoseService := service.NewGlucoseService(glucoseRepo, recordCache, m, logger)
	levels := handlers.NewLevelsHandler(glucoseService, logger)

	routes := httpserver.Routes{
		Health:     handlers.NewHealthHandler(glucoseService),
		UploadCSV:  handlers.NewUploadHandler(glucoseService, cfg.UploadMaxBytes(), logger).ServeHTTP,
		ListLevels: levels.HandleList,
		GetLevel:   levels.HandleGet,
		Metrics:    m.Handler(),
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("bearer authentication disabled")
	}

	router := httpserver.NewRouter(routes, middleware.Auth(cfg.Auth.JWTSecret))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Metrics(m),
	)
	return a, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
