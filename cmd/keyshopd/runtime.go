package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/config"
	"github.com/MarkoPoloResearchLab/keyshop/internal/migration"
	"github.com/MarkoPoloResearchLab/keyshop/internal/observability"
	"github.com/MarkoPoloResearchLab/keyshop/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/keyshop/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const (
	serviceName        = "keyshopd"
	slowQueryThreshold = 250 * time.Millisecond
)

// runtime holds the opened store and the service built on it.
type runtime struct {
	service *shop.Service
	closers []func() error
}

func (rt *runtime) Close() {
	for index := len(rt.closers) - 1; index >= 0; index-- {
		_ = rt.closers[index]()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggerConfig{
		ServiceName: serviceName,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
}

func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return observability.NewGormLogger(logger, gormlogger.Warn, slowQueryThreshold)
}

// openRuntime opens the configured store, brings the schema up to date and wires the service.
func openRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger, operationLogger shop.OperationLogger) (*runtime, error) {
	rt := &runtime{}
	store, err := openStore(ctx, cfg, logger, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	options := []shop.ServiceOption{shop.WithMaxPurchaseQuantity(cfg.MaxPurchaseQuantity)}
	if operationLogger != nil {
		options = append(options, shop.WithOperationLogger(operationLogger))
	}
	service, err := shop.NewService(store, func() time.Time { return time.Now().UTC() }, options...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("shop service init: %w", err)
	}
	rt.service = service
	return rt, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, rt *runtime) (shop.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPgx:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("pgx ping: %w", err)
		}
		if err := migratePool(ctx, pool); err != nil {
			return nil, err
		}
		return pgstore.New(pool), nil
	default:
		database, err := gormstore.Open(ctx, cfg.DatabaseURL, newGormLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("database open: %w", err)
		}
		rt.closers = append(rt.closers, database.Close)
		if err := prepareSchema(ctx, database); err != nil {
			return nil, err
		}
		return gormstore.New(database.DB), nil
	}
}

// prepareSchema runs the embedded migrations on Postgres and AutoMigrate on SQLite.
func prepareSchema(ctx context.Context, database *gormstore.Database) error {
	if database.Driver == gormstore.DriverSQLite {
		return database.AutoMigrate()
	}
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	return migration.RunMigrations(ctx, sqlDB)
}

func migratePool(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	return migration.RunMigrations(ctx, sqlDB)
}
