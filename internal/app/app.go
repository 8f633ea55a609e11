// Package app wires configuration into the journal's store, generation
// provider, and service. The HTTP server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/reflect-journal/backend/config"
	"github.com/reflect-journal/backend/internal/llm"
	"github.com/reflect-journal/backend/internal/questions"
	"github.com/reflect-journal/backend/pkg/database"
	"github.com/reflect-journal/backend/pkg/redis"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   questions.Store
	Service *questions.Service
	// Redis is nil when REDIS_ADDR is empty or unreachable.
	Redis *goredis.Client

	closers []func()
}

// New opens the store, runs migrations, and builds the service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, closeStore, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	gen, err := llm.NewProvider(ctx, cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	a.Service = questions.NewService(store, gen, questions.Config{
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		AnswerPolicy: cfg.Journal.AnswerPolicy,
	}, logger)

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
		} else {
			a.Redis = rdb
			a.closers = append(a.closers, func() { rdb.Close() })
		}
	}

	logger.Info("journal ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("model", gen.ModelID()),
		zap.String("answer_policy", string(cfg.Journal.AnswerPolicy)),
	)
	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (questions.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.DSN(), cfg.MaxConns, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return questions.NewRepository(pool), pool.Close, nil
	case "sqlite":
		db, err := database.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigrateSQLite(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return questions.NewSQLiteRepository(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
