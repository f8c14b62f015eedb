package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/config"
	"github.com/Larvizub/arvidev-presupuestos/internal/database"
	"github.com/Larvizub/arvidev-presupuestos/internal/events"
	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/metrics"
	"github.com/Larvizub/arvidev-presupuestos/internal/server"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/store/memstore"
	"github.com/Larvizub/arvidev-presupuestos/internal/store/sqlstore"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

// @title           Presupuestos API
// @version         1.0
// @description     Shared monthly budgets with income and expense tracking.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

// openStore returns the store selected by STORE_DRIVER and, for SQL drivers,
// the database manager behind it. The caller closes the store first, then the
// manager.
func openStore(cfg *config.Config, migrations string) (store.Store, *database.Manager, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Get().Warn("Using the in-memory store; data is lost on restart")
		return memstore.New(), nil, nil
	}

	dbConfig, err := database.NewConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	if err := dbManager.RunMigrations(migrations); err != nil {
		_ = dbManager.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return sqlstore.New(dbManager.DB()), dbManager, nil
}

// openPublisher connects to the broker when AMQP_URL is set.
func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.LogLevel != "" {
		if err := logger.SetLevel(appConfig.LogLevel); err != nil {
			log.Warnf("Ignoring LOG_LEVEL: %v", err)
		}
	}

	st, dbManager, err := openStore(appConfig, database.DefaultMigrationsSource)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnf("store close error: %v", err)
		}
		if dbManager == nil {
			return
		}
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	publisher, err := openPublisher(appConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to message broker: %w", err)
	}
	defer publisher.Close()

	validator.Register()

	m := metrics.New()
	svc := server.NewServices(metrics.InstrumentStore(st, m), publisher, appConfig.AdminEmails)
	router := server.NewRouter(svc, m)

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Presupuestos API on port %s (store: %s)", appConfig.Port, appConfig.StoreDriver)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
