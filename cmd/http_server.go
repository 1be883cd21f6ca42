package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/expense-approvals/internal"
	"github.com/frahmantamala/expense-approvals/internal/auth"
	authPostgres "github.com/frahmantamala/expense-approvals/internal/auth/postgres"
	"github.com/frahmantamala/expense-approvals/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approvals/internal/category/postgres"
	"github.com/frahmantamala/expense-approvals/internal/core/events"
	"github.com/frahmantamala/expense-approvals/internal/currency"
	"github.com/frahmantamala/expense-approvals/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approvals/internal/expense/postgres"
	"github.com/frahmantamala/expense-approvals/internal/flow"
	flowPostgres "github.com/frahmantamala/expense-approvals/internal/flow/postgres"
	"github.com/frahmantamala/expense-approvals/internal/notification"
	"github.com/frahmantamala/expense-approvals/internal/transport"
	"github.com/frahmantamala/expense-approvals/internal/transport/rest"
	"github.com/frahmantamala/expense-approvals/internal/transport/swagger"
	"github.com/frahmantamala/expense-approvals/internal/user"
	userPostgres "github.com/frahmantamala/expense-approvals/internal/user/postgres"
	"github.com/frahmantamala/expense-approvals/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Bus      *events.EventBus
	Mailer   *notification.Mailer
	Logger   *slog.Logger
	Services *Services
}

type Services struct {
	Users      *user.Service
	Auth       *auth.Service
	Categories *category.Service
	Flows      *flow.Service
	Expenses   *expense.Service
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		shutdownBackground(ctx, deps)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

// shutdownBackground lets in-flight event handlers queue their mail, then
// drains the mailer before the database goes away.
func shutdownBackground(ctx context.Context, deps *Dependencies) {
	deps.Bus.Wait()
	if err := deps.Mailer.Shutdown(ctx); err != nil {
		deps.Logger.Error("Mailer shutdown error", "error", err)
	}
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config.Server
	if cfg.OpenAPIPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := swagger.LoadSpec(ctx, cfg.OpenAPIPath); err != nil {
			return err
		}
	}

	base := transport.NewBaseHandler(deps.Logger)
	health := rest.NewHealthHandler(base, deps.DB)
	health.AddCheck("mail_queue", deps.Mailer.Check)

	svc := deps.Services
	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Health:      health,
		Auth:        auth.NewHandler(base, svc.Auth),
		RBAC:        auth.NewRBACAuthorization(deps.Logger),
		ExpenseACL:  auth.NewExpenseScope(base, deps.DB),
		Users:       user.NewHandler(base, svc.Users),
		Categories:  category.NewHandler(base, svc.Categories),
		Flows:       flow.NewHandler(base, svc.Flows),
		Expenses:    expense.NewHandler(base, svc.Expenses),
		OpenAPIPath: cfg.OpenAPIPath,
		Origins:     cfg.AllowedOrigins,
	}, deps.Logger)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.Init(config.Logging.Level, config.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := events.NewEventBus(lg)
	services, err := initServices(config, gdb, bus, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mailer, err := initNotifications(config, services.Users, bus, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := services.Categories.EnsureDefaults(context.Background()); err != nil {
		lg.Warn("failed to ensure default categories", "error", err)
	}

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		Gorm:     gdb,
		Router:   chi.NewRouter(),
		Bus:      bus,
		Mailer:   mailer,
		Services: services,
	}, nil
}

func initServices(cfg *internal.Config, gdb *gorm.DB, bus *events.EventBus, lg *slog.Logger) (*Services, error) {
	rates, err := currency.ParseRates(cfg.Currency.Rates)
	if err != nil {
		return nil, fmt.Errorf("invalid currency rates: %w", err)
	}
	converter := currency.NewConverter(rates)

	users := user.NewService(userPostgres.NewUserRepository(gdb), bus, cfg.Security.BCryptCost, lg)
	authService := auth.NewService(
		authPostgres.NewRepository(gdb),
		auth.NewJWTTokenGenerator(
			cfg.Security.AccessTokenSecret,
			cfg.Security.RefreshTokenSecret,
			cfg.Security.AccessTokenDuration,
			cfg.Security.RefreshTokenDuration,
		),
		users,
		converter,
		cfg.Security.BCryptCost,
		lg,
	)
	categories := category.NewService(categoryPostgres.NewCategoryRepository(gdb), lg)
	flows := flow.NewService(flowPostgres.NewFlowRepository(gdb), users, lg)
	expenses := expense.NewService(expense.Dependencies{
		Repo:          expensePostgres.NewExpenseRepository(gdb),
		Directory:     users,
		Flows:         flows,
		Categories:    categories,
		Converter:     converter,
		Publisher:     bus,
		CommitRetries: cfg.Approval.CommitRetries,
	}, lg)

	return &Services{
		Users:      users,
		Auth:       authService,
		Categories: categories,
		Flows:      flows,
		Expenses:   expenses,
	}, nil
}

// initNotifications starts the mail worker pool and subscribes the notifier
// to the bus.
func initNotifications(cfg *internal.Config, directory notification.Directory, bus *events.EventBus, lg *slog.Logger) (*notification.Mailer, error) {
	nc := cfg.Notification

	var sender notification.Sender = notification.LogSender{Logger: lg}
	if nc.Sender == "smtp" {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     nc.SMTP.Host,
			Port:     nc.SMTP.Port,
			Username: nc.SMTP.Username,
			Password: nc.SMTP.Password,
			From:     nc.From,
		})
	}

	translator, err := notification.NewTranslator(nc.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	mailer := notification.NewMailer(notification.MailerConfig{
		Workers:   nc.Workers,
		QueueSize: nc.QueueSize,
	}, sender, lg)
	notification.NewNotifier(mailer, directory, translator, cfg.Server.BaseURL, lg).Register(bus)
	return mailer, nil
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

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm opens gorm on the pool sqlx already holds.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}
