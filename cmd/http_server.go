package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/events"
	"github.com/frahmantamala/wallet-settlement/internal/ledger"
	"github.com/frahmantamala/wallet-settlement/internal/oracle"
	"github.com/frahmantamala/wallet-settlement/internal/payout"
	"github.com/frahmantamala/wallet-settlement/internal/settlement"
	settlementdb "github.com/frahmantamala/wallet-settlement/internal/settlement/postgres"
	"github.com/frahmantamala/wallet-settlement/internal/transport"
	"github.com/frahmantamala/wallet-settlement/internal/transport/rest"
	"github.com/frahmantamala/wallet-settlement/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle webhook and settlement API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config            *internal.Config
	DB                *sqlx.DB
	Router            *chi.Mux
	Ledger            *ledger.Client
	WebhookHandler    *settlement.WebhookHandler
	SettlementHandler *settlement.Handler
	Logger            *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Ledger.Close()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	// Register health endpoint and the settlement API; the router wires the
	// global middleware stack
	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Ledger,
		deps.WebhookHandler, deps.SettlementHandler,
		deps.Config.Webhook.Secret, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	ledgerClient := ledger.NewClient(config.Ledger, appLogger)
	balanceOracle := oracle.NewBalanceOracle(ledgerClient, config.Ledger.TokenContract, appLogger)
	payoutClient := payout.NewClient(config.Payout.BaseURL, config.Payout.APIKey, appLogger)

	settlementRepo := settlementdb.NewSettlementRepository(gormDB)
	walletRepo := settlementdb.NewWalletRepository(gormDB)

	eventBus := events.NewEventBus(appLogger)
	settlement.NewEventHandler(walletRepo, appLogger).RegisterHandlers(eventBus)

	settlementService := settlement.NewService(
		settlementRepo,
		walletRepo,
		ledgerClient,
		balanceOracle,
		payoutClient,
		eventBus,
		settlement.Config{
			TokenContract:  config.Ledger.TokenContract,
			SinkAccount:    config.Ledger.SinkAccount,
			SettleDelay:    config.Settlement.SettleDelay,
			VerifyAttempts: config.Settlement.VerifyAttempts,
			DeltaTolerance: config.Settlement.DeltaTolerance,
			MaxConcurrent:  config.Settlement.MaxConcurrent,
			SyncWait:       config.Settlement.SyncWait,
		},
		appLogger,
	)

	baseHandler := transport.NewBaseHandler(appLogger)
	webhookHandler := settlement.NewWebhookHandler(baseHandler, settlementService, appLogger)
	settlementHandler := settlement.NewHandler(baseHandler, settlementService, appLogger)

	router := chi.NewRouter()

	return &Dependencies{
		Config:            config,
		Logger:            appLogger,
		DB:                db,
		Router:            router,
		Ledger:            ledgerClient,
		WebhookHandler:    webhookHandler,
		SettlementHandler: settlementHandler,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
