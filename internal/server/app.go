// Package server initializes and runs the modauth application: storage,
// token engine, services and the HTTP API, with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/modauth/internal/cryptox"
	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/logging"
	"github.com/dmitrijs2005/modauth/internal/server/auth"
	"github.com/dmitrijs2005/modauth/internal/server/config"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/dmitrijs2005/modauth/internal/server/httpapi"
	"github.com/dmitrijs2005/modauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/modauth/internal/server/services"
	"github.com/dmitrijs2005/modauth/internal/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sqlx.DB
	redis           *redis.Client
	publisher       events.Publisher
	shutdownTracing func(context.Context) error
	authService     *services.AuthService
	moduleService   *services.ModuleService
}

// NewApp connects to storage, applies migrations and builds the services.
// On error everything opened so far is released.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.shutdownTracing, err = telemetry.Setup(ctx, "modauth", c.OtelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	db, dialect, err := dbx.Open(c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.db = db

	err = dbx.PingWithRetry(ctx, db, c.DBConnectAttempts, c.DBConnectRetryDelay, func(attempt int, err error) {
		logger.Warn(ctx, "database not ready, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewSQLRepositoryManager(dialect)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db.DB); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	opts := []services.Option{services.WithLogger(logger)}

	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		opts = append(opts, services.WithLimiter(ratelimit.NewRedisLimiter(app.redis, ratelimit.Config{
			MaxAttempts: c.LoginMaxAttempts,
			Cooldown:    c.LoginCooldownDuration,
		}, logger)))
	}

	app.publisher = events.NopPublisher{}
	if len(c.KafkaBrokers) > 0 {
		app.publisher = events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
	}
	opts = append(opts, services.WithPublisher(app.publisher))

	engine := auth.NewEngine([]byte(c.SecretKey), c.AccessTokenValidityDuration, auth.SystemClock{})
	hasher := cryptox.NewBcryptHasher(c.BcryptCost)

	app.authService = services.NewAuthService(db, rm, engine, hasher, opts...)
	app.moduleService = services.NewModuleService(db, rm, opts...)

	return app, nil
}

func (app *App) httpServer() *httpapi.HTTPServer {
	return httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.authService, app.moduleService,
		httpapi.WithAdminToken(app.config.AdminToken),
		httpapi.WithAllowedOrigins(app.config.FrontendURLs),
	)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer().Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or ctx is cancelled, then releases
// resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		app.logger.Error(closeCtx, "shutdown", "error", err)
	}
	app.logger.Info(closeCtx, "App stopped")
}

// Close releases external resources. Safe on a partially built App.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.shutdownTracing != nil {
		errs = append(errs, app.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
