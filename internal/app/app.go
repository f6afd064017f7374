package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"library-circulation/internal/api"
	"library-circulation/internal/catalog"
	"library-circulation/internal/circulation"
	"library-circulation/internal/config"
	"library-circulation/internal/ledger"
	"library-circulation/internal/policy"
	"library-circulation/internal/storage"
	"library-circulation/internal/storage/ch"
	"library-circulation/internal/storage/sqlite"
	"library-circulation/internal/storage/stubs"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	service *circulation.Service
	server  *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds the application from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting library circulation service",
		zap.Duration("loan_period", cfg.LoanPeriod),
		zap.Duration("renewal_extension", cfg.RenewalExtension),
		zap.Int("max_renewals", cfg.MaxRenewals),
	)

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Initialize circulation state
	if err := app.initService(); err != nil {
		app.db.Close()
		return nil, err
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

// NewLogger builds a zap logger for the given level and format (json or console)
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// initDatabase opens the configured record store
func (a *App) initDatabase() error {
	var db storage.Storage
	switch a.config.StorageDriver {
	case config.DriverClickHouse:
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.String("tls", tlsStatus),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
			a.logger.Named("clickhouse"),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	case config.DriverSQLite:
		a.logger.Info("Opening SQLite database", zap.String("path", a.config.SQLitePath))
		sqliteDB, err := sqlite.Open(a.config.SQLitePath, a.logger.Named("sqlite"))
		if err != nil {
			return fmt.Errorf("failed to open SQLite: %w", err)
		}
		db = sqliteDB
	default:
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	}

	// Initialize database schema and default data
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initService loads the persisted catalog and loans into a fresh circulation service
func (a *App) initService() error {
	ctx := context.Background()

	books, err := a.db.LoadBooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load books: %w", err)
	}
	if len(books) == 0 && a.config.SeedCatalog {
		books = stubs.DefaultBooks()
		for _, book := range books {
			if err := a.db.SaveBook(ctx, book); err != nil {
				return fmt.Errorf("failed to seed book %s: %w", book.ID, err)
			}
		}
		a.logger.Info("Seeded empty catalog", zap.Int("books", len(books)))
	}
	loans, err := a.db.LoadLoans(ctx)
	if err != nil {
		return fmt.Errorf("failed to load loans: %w", err)
	}

	p := policy.Policy{
		LoanPeriod:       a.config.LoanPeriod,
		RenewalExtension: a.config.RenewalExtension,
		MaxRenewals:      a.config.MaxRenewals,
	}
	svc := circulation.NewService(catalog.NewIndex(), ledger.New(p), a.db, a.logger.Named("circulation"), circulation.Options{
		LockTimeout:      a.config.LockTimeout,
		AllowedBorrowers: a.config.AllowedBorrowers,
	})
	if err := svc.Restore(books, loans); err != nil {
		return err
	}

	a.service = svc
	return nil
}

// initHTTPServer builds the HTTP server for the JSON API
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	api.NewHTTPServer(a.service, a.logger.Named("http")).RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Handler returns the HTTP handler serving the API
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves HTTP until ctx is cancelled or the server fails
func (a *App) RunContext(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down...")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return nil
}
