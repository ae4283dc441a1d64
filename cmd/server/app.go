package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/taskboard-api/internal/config"
	"github.com/phrazzld/taskboard-api/internal/events"
	"github.com/phrazzld/taskboard-api/internal/platform/postgres"
	"github.com/phrazzld/taskboard-api/internal/service"
	"github.com/phrazzld/taskboard-api/internal/service/auth"
	"github.com/phrazzld/taskboard-api/internal/store"
	"github.com/phrazzld/taskboard-api/internal/worker"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	// Stores
	userStore store.UserStore
	taskStore store.TaskStore
	jobStore  worker.JobStore

	// Services
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	authService      *service.AuthService
	taskService      *service.TaskService

	// Event system
	publisher events.Publisher

	// Background processing
	jobRunner  *worker.Runner
	dispatcher *worker.Dispatcher
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts the core dependencies that must be established
// before wiring: configuration, logger, and database connection.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.passwordVerifier = auth.NewBcryptVerifier()

	app.userStore = postgres.NewPostgresUserStore(db, bcrypt.DefaultCost)
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.jobStore = postgres.NewPostgresJobStore(db)

	app.redis, err = setupRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.publisher = events.NewRedisPublisher(app.redis, logger)

	if err := app.setupWorker(); err != nil {
		return nil, fmt.Errorf("failed to set up background worker: %w", err)
	}

	app.authService = service.NewAuthService(
		app.userStore,
		app.passwordVerifier,
		app.jwtService,
		logger,
	)
	app.taskService = service.NewTaskService(
		app.taskStore,
		app.dispatcher,
		app.publisher,
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupWorker initializes and starts the background job runner and the
// dispatcher that feeds it. The runner's restore hook delegates to the
// dispatcher, which is created right after the runner; recovery only
// runs once Start is called, so the indirection is safe.
func (app *application) setupWorker() error {
	cfg := app.config.Worker

	runnerConfig := worker.DefaultRunnerConfig()
	runnerConfig.WorkerCount = cfg.WorkerCount
	runnerConfig.QueueSize = cfg.QueueSize
	runnerConfig.MaxAttempts = cfg.MaxAttempts
	runnerConfig.RetryDelay = time.Duration(cfg.RetryDelayMillis) * time.Millisecond

	app.jobRunner = worker.NewRunner(
		app.jobStore,
		func(record worker.JobRecord) (worker.Job, error) {
			return app.dispatcher.Restore(record)
		},
		runnerConfig,
		app.logger,
	)

	app.dispatcher = worker.NewDispatcher(
		app.jobRunner,
		app.taskStore,
		app.publisher,
		time.Duration(cfg.ProcessingDelayMinMillis)*time.Millisecond,
		time.Duration(cfg.ProcessingDelayMaxMillis)*time.Millisecond,
		app.logger,
	)

	if err := app.jobRunner.Start(); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}

	app.logger.Info("Background job runner started",
		"worker_count", cfg.WorkerCount,
		"queue_size", cfg.QueueSize,
		"max_attempts", cfg.MaxAttempts)
	return nil
}

// setupRedis connects to the pub/sub broker and verifies the connection.
func setupRedis(
	ctx context.Context,
	cfg config.RedisConfig,
	logger *slog.Logger,
) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis connection established", "addr", cfg.Addr)
	return client, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. The job
// runner stops before the broker and database close so in-flight jobs
// can still publish and persist their state.
func (app *application) cleanup() {
	if app.jobRunner != nil {
		app.jobRunner.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
