package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/api"
	"github.com/escalaapp/escala/internal/app"
	"github.com/escalaapp/escala/internal/app/maintenance"
	iauth "github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/cache"
	"github.com/escalaapp/escala/internal/database"
	"github.com/escalaapp/escala/internal/middleware"
	"github.com/escalaapp/escala/internal/services"
	"github.com/escalaapp/escala/pkg/logger"
)

// runtimeStack collects everything with a lifecycle longer than a single
// request. Redis stays nil when the cache is disabled or unreachable; Store
// then points at the database-backed fallback.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     cache.Store
	Store     cache.Store
	RateStore middleware.RateStore
	Router    *gin.Engine

	cleaner *maintenance.Cleaner
}

// bootstrapRuntime opens the database, connects caches, starts maintenance
// jobs, and assembles the HTTP router. On any failure the partially built
// stack is shut down before the error is returned.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if os.Getenv("GIN_DEBUG") != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack := &runtimeStack{DB: db}
	ready := false
	defer func() {
		if !ready {
			stack.Shutdown(context.Background(), log)
		}
	}()

	dbStore := cache.NewDatabaseStore(db)
	stack.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		redis, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(redisErr))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			stack.Redis = redis
			stack.Store = redis
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.cleaner = maintenance.NewCleaner(db, auditSvc,
		maintenance.WithAuditRetentionDays(cfg.Invites.AuditRetention))
	if err := stack.cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Store, stack.RateStore)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	ready = true
	return stack, nil
}

// Shutdown stops the cron jobs, runs one last cleanup sweep, and releases the
// cache and database connections. Safe to call on a partially built stack.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.cleaner != nil {
		if stopCtx := s.cleaner.Stop(); stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func openDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// convertDatabaseConfig maps application settings onto the database package's
// connection config, normalising the driver name along the way.
func convertDatabaseConfig(cfg *app.Config) database.Config {
	out := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch out.Driver {
	case "", "sqlite":
		out.Driver = "sqlite"
	case "postgres", "postgresql":
		out.Driver = "postgres"
		applyHostSettings(&out, cfg.Database.Postgres)
	case "mysql":
		applyHostSettings(&out, cfg.Database.MySQL)
	default:
		// Unknown drivers pass through so Open reports them.
	}

	return out
}

func applyHostSettings(out *database.Config, src app.DBAuthConfig) {
	out.Host = strings.TrimSpace(src.Host)
	out.Port = src.Port
	out.Name = strings.TrimSpace(src.Database)
	out.User = strings.TrimSpace(src.Username)
	out.Password = strings.TrimSpace(src.Password)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
