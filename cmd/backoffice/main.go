package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/accounts"
	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/catalog"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/sales"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.MigrateOnStart || *migrateOnly {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
		if *migrateOnly {
			return
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	tokenStore := auth.NewTokenStore(redisClient, cfg.SessionTTL)
	usersService := users.NewService(users.NewRepository(dbpool)).
		WithRevoker(tokenStore).
		WithAuditor(shared.NewAuditLogger(dbpool))
	if cfg.AdminPassword != "" {
		created, err := usersService.EnsureAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword)
		if err != nil {
			logger.Error("ensure admin", slog.Any("error", err))
			os.Exit(1)
		}
		if created {
			logger.Info("administrator account created", slog.String("login", cfg.AdminLogin))
		}
	} else {
		logger.Warn("ADMIN_PASSWORD not set, skipping administrator bootstrap")
	}
	authService := auth.NewService(usersService, tokenStore)

	catalogRepo := catalog.NewRepository(dbpool)
	storeRegistry := catalog.NewRegistry(catalogRepo, redisClient, logger)
	catalogService := catalog.NewService(catalogRepo, storeRegistry)

	inventoryRepo := inventory.NewRepository(dbpool, func(tx pgx.Tx) inventory.LedgerPort {
		return accounts.NewTxLedger(tx)
	})
	inventoryService := inventory.NewService(inventoryRepo, idempotencyStore, inventory.ServiceConfig{
		DefaultWarehouseID: cfg.DefaultWarehouseID,
		Observer:           metrics,
		Stores:             storeRegistry,
		Logger:             logger,
	})

	salesService := sales.NewService(sales.NewRepository(dbpool))
	accountsService := accounts.NewService(accounts.NewRepository(dbpool))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Authenticator:    auth.Middleware(authService, logger),
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
		AuthHandler:      auth.NewHandler(logger, authService, rbacMiddleware),
		UsersHandler:     users.NewHandler(logger, usersService, rbacMiddleware),
		CatalogHandler:   catalog.NewHandler(logger, catalogService, rbacMiddleware),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		SalesHandler:     sales.NewHandler(logger, salesService, rbacMiddleware),
		AccountsHandler:  accounts.NewHandler(logger, accountsService, rbacMiddleware),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
