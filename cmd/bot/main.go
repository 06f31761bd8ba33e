package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otpbot/internal/config"
	"otpbot/internal/handler"
	"otpbot/internal/metrics"
	"otpbot/internal/middleware"
	"otpbot/internal/provider"
	"otpbot/internal/repository"
	"otpbot/internal/repository/postgres"
	"otpbot/internal/service"

	"github.com/golang-migrate/migrate/v4"
	postgresdb "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const (
	notifyAttempts = 3
	notifyDelay    = time.Second
)

func main() {
	// Initialize logger; switched to the development profile once config says so
	logger := newLogger(true)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting OTP Bot")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if !cfg.IsProduction() {
		logger = newLogger(false)
	}

	logger.Info("Configuration loaded successfully",
		zap.String("env", cfg.Env),
		zap.String("country_id", cfg.Provider.CountryID),
		zap.Int("allowed_users", len(cfg.AllowedUsers)),
	)
	if len(cfg.AllowedUsers) == 0 {
		logger.Warn("ALLOWED_USERS is empty, every user will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Order journal is optional
	var journal repository.OrderJournal = repository.NopJournal{}
	if cfg.DatabaseURL != "" {
		db, err := connectDatabase(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connection established")

		if err := runMigrations(db, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		journal = postgres.NewOrderRepo(db)
	} else {
		logger.Info("DATABASE_URL not set, order journal disabled")
	}

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	// Provider client
	client := provider.NewClient(provider.Options{
		BaseURL:       cfg.Provider.BaseURL,
		APIKey:        cfg.Provider.APIKey,
		CountryID:     cfg.Provider.CountryID,
		OperatorID:    cfg.Provider.OperatorID,
		Timeout:       cfg.Provider.Timeout,
		RetryAttempts: cfg.Provider.RetryAttempts,
		RetryDelay:    cfg.Provider.RetryDelay,
	}, logger)

	// Initialize Telegram bot
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Sender() != nil {
				fields = append(fields, zap.Int64("user_id", c.Sender().ID))
			}
			logger.Error("Telegram handler error", fields...)
		},
	})
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	logger.Info("Telegram bot initialized", zap.String("username", bot.Me.Username))

	// Initialize services
	authService := service.NewAuthService(cfg.AllowedUsers)
	catalogService := service.NewCatalogService(client, cfg.ItemsPerPage, logger)
	notifier := handler.NewTelegramNotifier(bot, notifyAttempts, notifyDelay, logger)
	tracker := service.NewTracker(client, notifier, journal, service.TrackerConfig{
		Interval:     cfg.Poll.Interval,
		InitialDelay: cfg.Poll.InitialDelay,
		MaxLifetime:  cfg.Poll.MaxLifetime,
	}, logger)

	dispatcher := handler.NewDispatcher(
		authService,
		catalogService,
		tracker,
		client,
		journal,
		handler.NewSessionStore(),
		cfg.Provider.CountryID,
		logger,
	)

	// Initialize handler
	bot.Use(
		middleware.RecoverMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.AuthMiddleware(authService, logger),
	)
	h := handler.NewHandler(ctx, bot, dispatcher, logger)
	h.RegisterHandlers()

	logger.Info("Handlers registered")

	// Start bot in background
	go func() {
		logger.Info("Bot started successfully")
		bot.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info("Shutdown signal received, stopping bot...")

	// Graceful shutdown
	bot.Stop()
	cancel()
	tracker.Stop()

	logger.Info("Bot stopped gracefully")
}

// connectDatabase connects to PostgreSQL with retries
func connectDatabase(dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 15
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Warn("Failed to open database connection",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(retryDelay)
			continue
		}

		// Test connection
		if err = db.Ping(); err != nil {
			logger.Warn("Failed to ping database",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			db.Close()
			time.Sleep(retryDelay)
			continue
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// runMigrations applies the order journal schema
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgresdb.WithInstance(db, &postgresdb.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied successfully")
	}

	return nil
}
