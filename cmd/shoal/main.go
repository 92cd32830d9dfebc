package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shoalmedia/shoal/internal/config"
	"github.com/shoalmedia/shoal/internal/conversion"
	natsinfra "github.com/shoalmedia/shoal/internal/infrastructure/events/nats"
	"github.com/shoalmedia/shoal/internal/library/repository"
	"github.com/shoalmedia/shoal/internal/library/service"
	"github.com/shoalmedia/shoal/internal/server"
	"github.com/shoalmedia/shoal/internal/storage"
	"github.com/shoalmedia/shoal/pkg/database"
	"github.com/shoalmedia/shoal/pkg/events"
	"github.com/shoalmedia/shoal/pkg/logger"
)

func main() {
	cfg, err := config.Load("shoal")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Database
	db, err := database.NewGormDB(&database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxOpenConns,
		MinConnections:  cfg.Database.MaxIdleConns,
		MaxConnLifetime: cfg.Database.MaxLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Artifact storage
	store, err := buildStore(cfg, log)
	if err != nil {
		return err
	}

	// Event bus, optionally bridged to JetStream
	bus := events.NewInMemoryEventBus(log)
	defer bus.Close()

	if cfg.NATS.URL != "" {
		natsClient, natsCleanup, err := natsinfra.NewClient(&cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsCleanup()

		publisher := natsinfra.NewPublisher(natsClient, log)
		bus.Subscribe(conversion.EventTypeVariantCreated, publisher.Handle)
	}

	// Conversion pipeline
	catalog, err := conversion.NewCatalog(conversion.DefaultProfiles())
	if err != nil {
		return fmt.Errorf("failed to build profile catalog: %w", err)
	}

	repo := repository.NewGormRepository(db)
	runner := conversion.NewProcessRunner(log)

	coordinator := conversion.NewCoordinator(catalog, runner, store, repo, bus, log, conversion.Options{
		VerboseProcessOutput: cfg.Transcode.VerboseProcessOutput,
		ProcessTimeout:       cfg.Transcode.ProcessTimeout,
	})
	queue := conversion.NewQueue(coordinator, log)

	library := service.NewLibraryService(repo, store, catalog, queue, log)

	// HTTP surface
	handlers := server.NewHandlers(library, coordinator, queue, log)
	srv := server.New(handlers, cfg.Server.HTTPPort, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTime)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	// Let queued background conversions finish before exiting.
	queue.Wait()

	return nil
}

func buildStore(cfg *config.Config, log *zap.Logger) (*storage.ArtifactStore, error) {
	mode := storage.ModeDirect
	var backend storage.UploadBackend

	if cfg.Storage.Mode == "indirect" {
		mode = storage.ModeIndirect

		var err error
		switch cfg.Storage.Backend {
		case "minio":
			backend, err = storage.NewMinIOBackend(
				cfg.Storage.MinIO.Endpoint,
				cfg.Storage.MinIO.AccessKeyID,
				cfg.Storage.MinIO.SecretAccessKey,
				cfg.Storage.MinIO.Bucket,
				cfg.Storage.MinIO.UseSSL,
				log,
			)
		case "s3":
			backend, err = storage.NewS3Backend(
				context.Background(),
				cfg.Storage.S3.Bucket,
				cfg.Storage.S3.Prefix,
				cfg.Storage.S3.Region,
				log,
			)
		default:
			err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build upload backend: %w", err)
		}
	}

	return storage.NewArtifactStore(mode, cfg.Storage.LocalPath, backend, log)
}
