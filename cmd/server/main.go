// Package main is the entry point for the lotledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotledger/internal/core/security"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/catalogs/warehouse"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/documents"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/domain/documents/transfer"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/posting"
	"lotledger/internal/domain/transfercost"
	"lotledger/internal/infrastructure/cache"
	v1 "lotledger/internal/infrastructure/http/v1"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/auth_repo"
	"lotledger/internal/infrastructure/storage/postgres/catalog_repo"
	"lotledger/internal/infrastructure/storage/postgres/document_repo"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// defaultPolicy lets admins do everything, managers everything on stock
// documents, and storekeepers everything except cancellations.
const defaultPolicy = `admin || ("manager" in roles) || ("storekeeper" in roles && action != "cancel")`

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lotledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Repositories ---
	ledgerRepo := postgres.NewLedgerRepo(txm)
	balanceRepo := postgres.NewBalanceRepo(txm)
	numberingRepo := postgres.NewNumberingRepo(txm)
	receiptRepo := document_repo.NewStockReceiptRepo(txm)
	issueRepo := document_repo.NewStockIssueRepo(txm)
	transferRepo := document_repo.NewStockTransferRepo(txm)
	materialRepo := catalog_repo.NewMaterialRepo(txm)
	warehouseRepo := catalog_repo.NewWarehouseRepo(txm)
	userRepo := auth_repo.NewUserRepo(txm)

	auditLog, err := postgres.NewAuditLog(txm)
	if err != nil {
		log.Fatalw("failed to initialize audit log", "error", err)
	}

	// --- Authorization policy ---
	authorizer, err := security.NewCELAuthorizer(getEnv("AUTH_POLICY", defaultPolicy))
	if err != nil {
		log.Fatalw("failed to compile authorization policy", "error", err)
	}

	// Live policy reload from sys_settings via LISTEN/NOTIFY
	policyWatcher := cache.NewPolicyWatcher(pool.Unwrap(), authorizer)
	if err := policyWatcher.Start(ctx); err != nil {
		log.Fatalw("failed to start policy watcher", "error", err)
	}
	defer policyWatcher.Stop()

	// --- Core services ---
	ledgerService := ledger.NewService(ledgerRepo, nil)
	costingEngine := costing.NewEngine()
	aggregator := balance.NewAggregator(balanceRepo, nil)
	numbers := numerator.New(numberingRepo, nil)
	engine := posting.NewEngine(txm, auditLog)

	rates := transfercost.Rates{
		PerKm: envMoney(log, "TRANSFER_RATE_PER_KM", "1.50"),
		PerKg: envMoney(log, "TRANSFER_RATE_PER_KG", "0.10"),
		PerM3: envMoney(log, "TRANSFER_RATE_PER_M3", "25.00"),
	}
	estimator := transfercost.NewEstimator(warehouseRepo, materialRepo, rates)

	materials := material.NewService(materialRepo)
	warehouses := warehouse.NewService(warehouseRepo)

	// --- Document services ---
	receipts := receipt.NewService(receiptRepo, ledgerService, costingEngine, materialRepo, aggregator, numbers, engine, authorizer, txm)
	issues := issue.NewService(issueRepo, ledgerService, costingEngine, materialRepo, aggregator, numbers, engine, authorizer, txm)
	transfers := transfer.NewService(transferRepo, ledgerService, aggregator, numbers, engine, authorizer, txm, estimator)
	facade := documents.NewFacade(receipts, issues, transfers, ledgerService)

	// --- Auth ---
	jwtSecret := getEnv("JWT_SECRET", "dev-secret-change-in-production")
	authService := auth.NewService(userRepo, auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret)))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:        pool,
		Logger:      log,
		AuthService: authService,
		Facade:      facade,
		Receipts:    receipts,
		Issues:      issues,
		Transfers:   transfers,
		Aggregator:  aggregator,
		Estimator:   estimator,
		Materials:   materials,
		Warehouses:  warehouses,
		AuditLog:    auditLog,
	})

	// --- HTTP server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Periodic pool stats for operators
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go func() {
		ticker := time.NewTicker(getEnvDuration("DB_STATS_INTERVAL", time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-statsCtx.Done():
				return
			case <-ticker.C:
				pool.LogStats(statsCtx)
			}
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func envMoney(log *logger.Logger, key, defaultValue string) types.Money {
	raw := getEnv(key, defaultValue)
	m, err := types.NewMoneyFromString(raw)
	if err != nil {
		log.Fatalw("invalid money value in environment", "key", key, "value", raw)
	}
	return m
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
