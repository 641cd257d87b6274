// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/catalogs/warehouse"
	"lotledger/internal/domain/documents"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/domain/documents/transfer"
	"lotledger/internal/domain/transfercost"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// RouterConfig holds the wired services the API exposes.
type RouterConfig struct {
	Pool   *postgres.Pool
	Logger *logger.Logger

	AuthService *auth.Service

	Facade    *documents.Facade
	Receipts  *receipt.Service
	Issues    *issue.Service
	Transfers *transfer.Service

	Aggregator *balance.Aggregator
	Estimator  *transfercost.Estimator

	Materials  *material.Service
	Warehouses *warehouse.Service

	AuditLog *postgres.AuditLog
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	base := handlers.NewBaseHandler()

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	authHandler := handlers.NewAuthHandler(base, cfg.AuthService)

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", authHandler.Login)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.AuthService))

		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		// Only admins may create accounts
		protected.POST("/auth/register", middleware.RequireRole("admin"), authHandler.Register)

		registerDocumentRoutes(protected, base, cfg)
		registerStockRoutes(protected, base, cfg)
		registerCatalogRoutes(protected, base, cfg)
	}

	return router
}

func registerDocumentRoutes(group *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewDocumentsHandler(base, cfg.Facade, cfg.Receipts, cfg.Issues, cfg.Transfers)
	auditHandler := handlers.NewAuditHandler(base, cfg.AuditLog)

	docs := group.Group("/documents")
	{
		docs.POST("", h.Create)
		docs.POST("/:id/transition", h.Transition)
		docs.GET("/:id/audit", auditHandler.GetByDocument)

		docs.GET("/receipts", h.ListReceipts)
		docs.GET("/receipts/:id", h.GetReceipt)

		docs.GET("/issues", h.ListIssues)
		docs.GET("/issues/:id", h.GetIssue)

		docs.GET("/transfers", h.ListTransfers)
		docs.GET("/transfers/:id", h.GetTransfer)
	}
}

func registerStockRoutes(group *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	stockHandler := handlers.NewStockHandler(base, cfg.Facade, cfg.Aggregator)
	costHandler := handlers.NewTransferCostHandler(base, cfg.Estimator)

	stock := group.Group("/stock")
	{
		stock.GET("/on-hand", stockHandler.GetOnHand)
		stock.GET("/lots", stockHandler.GetLots)
		stock.GET("/turnover", stockHandler.GetTurnover)
		stock.GET("/daily", stockHandler.GetDaily)
	}

	cost := group.Group("/transfer-cost")
	{
		cost.POST("/estimate", costHandler.Estimate)
		cost.POST("/rank-sources", costHandler.RankSources)
	}
}

func registerCatalogRoutes(group *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	materialHandler := handlers.NewMaterialHandler(base, cfg.Materials)
	warehouseHandler := handlers.NewWarehouseHandler(base, cfg.Warehouses)

	catalogs := group.Group("/catalogs")
	{
		catalogs.GET("/materials", materialHandler.List)
		catalogs.POST("/materials", materialHandler.Create)
		catalogs.GET("/materials/:id", materialHandler.Get)
		catalogs.PUT("/materials/:id", materialHandler.Update)

		catalogs.GET("/warehouses", warehouseHandler.List)
		catalogs.POST("/warehouses", warehouseHandler.Create)
		catalogs.GET("/warehouses/:id", warehouseHandler.Get)
		catalogs.PUT("/warehouses/distances", warehouseHandler.SetDistance)
	}
}
