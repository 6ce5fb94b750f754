package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consultation-booking/config"
	deliveryHttp "consultation-booking/internal/delivery/http"
	"consultation-booking/internal/delivery/http/handler"
	"consultation-booking/internal/delivery/http/middleware"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/internal/infrastructure/cache"
	"consultation-booking/internal/infrastructure/database"
	"consultation-booking/internal/infrastructure/queue"
	"consultation-booking/internal/infrastructure/tracing"
	"consultation-booking/internal/repository"
	"consultation-booking/internal/service"
	"consultation-booking/internal/usecase"
	"consultation-booking/internal/worker"
	"consultation-booking/pkg/jwt"
	"consultation-booking/pkg/validator"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisClient *redis.Client
	Queue       gateway.JobQueue
	Server      *http.Server
	Worker      *worker.FulfillmentWorker
	RateLimiter *middleware.RateLimiter

	shutdownTracing tracing.ShutdownFunc
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app.Config = cfg

	// Setup logger
	log := setupLogger(cfg.App.LogLevel)
	log.Info("Configuration loaded successfully")

	shutdownTracing, err := tracing.Init(context.Background(), cfg.App, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	app.shutdownTracing = shutdownTracing

	// Initialize database
	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(database.MigrationURL(cfg.DB)); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	db, err := database.NewPostgresConnection(cfg.DB, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	log.Info("Database connected successfully")

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(context.Background(), cfg.Redis, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient
	log.Info("Redis connected successfully")

	// Initialize job queue
	jobQueue, err := newJobQueue(cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = jobQueue

	app.initializeServer(cfg, log)

	return app, nil
}

// setupLogger configures the logrus logger
func setupLogger(level string) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// newJobQueue uses RabbitMQ when QUEUE_URL is set, else the in-process queue.
func newJobQueue(cfg *config.Config, log *logrus.Logger) (gateway.JobQueue, error) {
	if cfg.Queue.URL == "" {
		log.Warn("QUEUE_URL not set, fulfillment jobs are kept in memory")
		return queue.NewLocal(cfg.Queue.Buffer, cfg.Fulfillment.Concurrency, log), nil
	}

	q, err := queue.NewRabbitMQ(cfg.Queue, cfg.Fulfillment.Concurrency, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	log.Infof("Fulfillment jobs published to exchange %s", cfg.Queue.Exchange)
	return q, nil
}

// initializeServer wires every layer and creates the HTTP server
func (app *App) initializeServer(cfg *config.Config, log *logrus.Logger) {
	db := app.DB

	// Initialize JWT service
	jwtService := jwt.NewJWTService(cfg.JWT)

	// Initialize validator
	customValidator := validator.NewValidator()

	// Initialize repositories
	bookingRepo := repository.NewBookingRepository()
	auditLogRepo := repository.NewAuditLogRepository()

	// Initialize services
	auditService := service.NewAuditService(db, log, auditLogRepo)
	slotLocks := service.NewSlotLockService(app.RedisClient, log)
	eventDeduper := service.NewEventDedupeService(app.RedisClient)
	payments := service.NewStripePaymentService(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.SessionTTL, log)
	meetings := service.NewZoomMeetingService(cfg.Zoom, log)
	notifier := service.NewEmailNotificationService(cfg.Mail, service.NewSMTPSender(cfg.Mail), log)

	// Initialize usecases
	writer := usecase.NewReservationWriter(db, log, bookingRepo, slotLocks, cfg.Stripe.SessionTTL)
	bookingUsecase := usecase.NewBookingUsecase(db, log, bookingRepo, writer, payments, auditService, cfg.Stripe)
	paymentEventUsecase := usecase.NewPaymentEventUsecase(db, log, bookingRepo, writer, payments, eventDeduper, app.Queue, auditService)
	fulfillmentUsecase := usecase.NewFulfillmentUsecase(db, log, bookingRepo, meetings, notifier, app.Queue, auditService, cfg.Fulfillment.Lease)
	adminBookingUsecase := usecase.NewAdminBookingUsecase(db, log, bookingRepo, writer, auditService)
	authUsecase := usecase.NewAuthUsecase(log, cfg.Admin, jwtService, app.RedisClient, auditService)
	auditLogUsecase := usecase.NewAuditLogUsecase(db, log, auditLogRepo)

	// Initialize handlers
	bookingHandler := handler.NewBookingHandler(bookingUsecase, customValidator)
	webhookHandler := handler.NewWebhookHandler(paymentEventUsecase, log)
	authHandler := handler.NewAuthHandler(authUsecase, customValidator)
	adminBookingHandler := handler.NewAdminBookingHandler(adminBookingUsecase, fulfillmentUsecase, customValidator)
	auditLogHandler := handler.NewAuditLogHandler(auditLogUsecase, customValidator)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, app.RedisClient)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.App.CORSOrigins...)
	app.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// Initialize router
	router := deliveryHttp.NewRouter(
		bookingHandler,
		webhookHandler,
		authHandler,
		adminBookingHandler,
		auditLogHandler,
		authMiddleware,
		corsMiddleware,
		app.RateLimiter,
		cfg.Admin.Email,
	)

	app.Worker = worker.NewFulfillmentWorker(app.Queue, fulfillmentUsecase, cfg.Fulfillment.Timeout, log)

	// Create server
	app.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and the fulfillment worker, then blocks until
// shutdown completes
func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go app.RateLimiter.Run(ctx)

	workerDone := make(chan struct{})
	workerErr := make(chan error, 1)
	go func() {
		defer close(workerDone)
		if err := app.Worker.Run(ctx); err != nil {
			workerErr <- err
		}
	}()

	// Start server in goroutine
	go func() {
		logrus.Infof("Server starting on port %s", app.Config.App.Port)
		logrus.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal or a dead worker
	if err := app.waitForShutdown(cancel, workerDone, workerErr); err != nil {
		logrus.Fatalf("Fulfillment worker exited: %v", err)
	}
}

// waitForShutdown blocks until an interrupt signal is received or the
// fulfillment worker stops on its own, which is returned as an error
func (app *App) waitForShutdown(stopWorkers context.CancelFunc, workerDone <-chan struct{}, workerErr <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var failure error
	select {
	case <-quit:
	case failure = <-workerErr:
		logrus.Errorf("Fulfillment worker stopped, shutting down: %v", failure)
	}

	logrus.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop taking requests first so no new jobs are published
	if err := app.Server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	stopWorkers()
	select {
	case <-workerDone:
	case <-ctx.Done():
		logrus.Warn("Fulfillment worker did not stop before the deadline")
	}

	if app.shutdownTracing != nil {
		if err := app.shutdownTracing(ctx); err != nil {
			logrus.Warnf("Failed to flush traces: %v", err)
		}
	}

	// Close connections
	app.Close()

	logrus.Info("Server shutdown complete")
	return failure
}

// Close closes all connections (queue, database, redis)
func (app *App) Close() {
	if app.Queue != nil {
		if err := app.Queue.Close(); err != nil {
			logrus.Warnf("Failed to close job queue: %v", err)
		}
	}

	// Close database connection
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	// Close Redis connection
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
