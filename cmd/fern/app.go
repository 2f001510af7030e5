package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/store"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/ownership"
	fredis "github.com/Ramsey-B/fern/pkg/redis"
)

// app holds what every subcommand needs
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level

	zapLogger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func (a *app) openDatabase(ctx context.Context) (database.DB, error) {
	db, err := sqlx.ConnectContext(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", a.cfg.DatabaseName, err)
	}
	db.SetMaxOpenConns(a.cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(a.cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)
	return database.NewDatabaseInstance(db, a.logger), nil
}

func (a *app) migrationService() *database.MigrationService {
	return database.NewMigrationService(a.logger, database.MigrationConfig{
		FolderPath:   a.cfg.DatabaseMigrationFolderPath,
		Version:      a.cfg.DatabaseMigrationVersion,
		Force:        a.cfg.DatabaseMigrationForce,
		AutoRollback: a.cfg.DatabaseMigrationAutoRollback,
	})
}

func (a *app) openRedis() (*fredis.Client, error) {
	return fredis.NewClient(fredis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
}

// ingestionService wires ingestion over Postgres and Redis. publisher may be nil.
func (a *app) ingestionService(db database.DB, redisClient *fredis.Client, publisher ingestion.Publisher) (*ingestion.Service, *ownership.Matrix, error) {
	matrix, err := ownership.LoadMatrix(a.cfg.OwnershipMatrixPath)
	if err != nil {
		return nil, nil, err
	}
	mapper, err := ingestion.LoadMapper(a.cfg.SourceMappingPath)
	if err != nil {
		return nil, nil, err
	}

	service := ingestion.NewService(a.logger, store.New(db, a.logger), fredis.NewLocker(redisClient, ""),
		ownership.NewResolver(matrix), mapper, publisher, ingestion.Config{
			LockTTL:  a.cfg.IngestLockTTL,
			LockWait: a.cfg.IngestLockWait,
			Workers:  a.cfg.IngestWorkerCount,
		})
	return service, matrix, nil
}
