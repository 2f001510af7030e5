package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/internal/store"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	fredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/vendors"
)

func newServeCommand() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the source record consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on startup")
	return cmd
}

func (a *app) serve(ctx context.Context, skipMigrations bool) error {
	cfg := a.cfg
	log := a.logger

	if cfg.TracingEnabled {
		tp, err := exporters.NewTracerProvider(ctx, cfg.AppName, exporters.OTLPConfig{
			Endpoint: cfg.TracingEndpoint,
			Protocol: cfg.TracingProtocol,
			Insecure: cfg.TracingInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return err
		}
		defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
	}

	var (
		db          database.DB
		redisClient *fredis.Client
		graphClient *graph.Client
	)

	boot := startup.NewStartup(log, cfg.StartupMaxAttempts)
	boot.AddDependency(startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			var err error
			if db, err = a.openDatabase(ctx); err != nil {
				return err
			}
			if skipMigrations {
				return nil
			}
			return a.migrationService().Up(db, cfg.DatabaseName)
		},
		StopFunc: func(context.Context) error { return db.Close() },
	})
	boot.AddDependency(startup.Func{
		Name: "redis",
		StartFunc: func(context.Context) error {
			var err error
			redisClient, err = a.openRedis()
			return err
		},
		StopFunc: func(context.Context) error { return redisClient.Close() },
	})
	if cfg.GraphDBEnabled {
		boot.AddDependency(startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, log)
				if err != nil {
					return err
				}
				if err := client.Ping(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				graphClient = client
				return nil
			},
			StopFunc: func(ctx context.Context) error { return graphClient.Close(ctx) },
		})
	}

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = boot.Stop(context.WithoutCancel(ctx)) }()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: cfg.KafkaBatchTimeout,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, log)
	defer func() { _ = producer.Close() }()
	emitter := events.NewEmitter(producer, log)

	ingestService, matrix, err := a.ingestionService(db, redisClient, emitter)
	if err != nil {
		return err
	}

	var (
		lineageRecorder merging.LineageRecorder
		lineageReader   vendors.LineageReader
	)
	if graphClient != nil {
		lineageRecorder = graphClient
		lineageReader = graphClient
	}

	vendorStore := store.New(db, log)
	orchestrator := merging.NewOrchestrator(log, vendorStore, fredis.NewLocker(redisClient, ""),
		fredis.NewSessionStore(redisClient, "", cfg.MergeSessionTTL), matrix, emitter, lineageRecorder,
		merging.Config{LockTTL: cfg.MergeLockTTL})

	checker := health.NewChecker(cfg.Version)
	checker.AddCheck("database", db.PingContext)
	checker.AddCheck("redis", redisClient.Ping)
	if graphClient != nil {
		checker.AddOptionalCheck("graph", graphClient.Ping)
	}

	e := newEcho(cfg, log, checker, handlers.Handlers{
		Ingestion: handlers.NewIngestionHandler(ingestService, log),
		Vendors:   handlers.NewVendorHandler(vendors.NewService(log, vendorStore, emitter, lineageReader), log),
		Merges:    handlers.NewMergeHandler(orchestrator, log),
	})

	if cfg.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaInputTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, log, ingestService.HandleMessage)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = consumer.Stop() }()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("%s listening on %s", cfg.AppName, server.Addr)
		serverErr <- server.ListenAndServe()
	}()
	checker.SetReady(true)

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newEcho(cfg *config.Config, logger ectologger.Logger, checker *health.Checker, h handlers.Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)
	h.Register(e)
	return e
}
