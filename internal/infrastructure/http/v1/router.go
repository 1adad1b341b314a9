// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/app"
	"marketplace/internal/core/security"
	"marketplace/internal/infrastructure/http/v1/handlers"
	"marketplace/internal/infrastructure/http/v1/middleware"
	"marketplace/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Services are the wired domain workflows.
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency enables replay of mutating requests carrying an
	// Idempotency-Key header. Nil disables it.
	Idempotency middleware.IdempotencyStore

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger

	// Debug keeps gin in debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	// Recovery sits inside ErrorHandler so a recovered panic is still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	orderHandler := handlers.NewOrderHandler(base, cfg.Services.Orders)
	returnHandler := handlers.NewReturnHandler(base, cfg.Services.Returns)
	inventoryHandler := handlers.NewInventoryHandler(base, cfg.Services.Ledger)

	v1 := router.Group("/api/v1")
	{
		// Gateway callbacks carry no user token.
		v1.POST("/payments/webhook", orderHandler.PaymentWebhook)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		if cfg.Idempotency != nil {
			protected.Use(middleware.Idempotency(cfg.Idempotency))
		}

		registerOrderRoutes(protected, orderHandler, returnHandler)
		registerReturnRoutes(protected, returnHandler)
		registerInventoryRoutes(protected, inventoryHandler)
	}

	return router
}

func registerOrderRoutes(rg *gin.RouterGroup, h *handlers.OrderHandler, rh *handlers.ReturnHandler) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.PATCH("/:id/status", h.UpdateStatus)
		orders.POST("/:id/cancellation", h.RequestCancellation)
		orders.POST("/:id/cancellation/review", middleware.RequireRole(security.RoleAdmin), h.ReviewCancellation)
		orders.POST("/:id/payments", h.InitiatePayment)
		orders.GET("/:id/returns", rh.ListForOrder)
		orders.GET("/:id/refunds", h.Refunds)
	}

	rg.PATCH("/order-items/:id/status", middleware.RequireRole(security.RoleAdmin, security.RoleVendor), h.UpdateItemStatus)
}

func registerReturnRoutes(rg *gin.RouterGroup, h *handlers.ReturnHandler) {
	returns := rg.Group("/returns")
	{
		returns.POST("", h.Create)
		returns.GET("/:id", h.Get)
		returns.POST("/:id/review", middleware.RequireRole(security.RoleAdmin, security.RoleVendor), h.Review)
		returns.PATCH("/:id/status", middleware.RequireRole(security.RoleAdmin, security.RoleVendor), h.UpdateStatus)
		returns.POST("/:id/cancel", h.Cancel)
	}

	rg.PATCH("/return-items/:id/status", middleware.RequireRole(security.RoleAdmin, security.RoleVendor), h.UpdateItemStatus)
}

func registerInventoryRoutes(rg *gin.RouterGroup, h *handlers.InventoryHandler) {
	staff := middleware.RequireRole(security.RoleAdmin, security.RoleVendor)

	inv := rg.Group("/inventory")
	{
		inv.GET("/stock", h.Available)
		inv.POST("/stock/adjust", staff, h.Adjust)
		inv.POST("/stock/restock", staff, h.Restock)
		inv.PUT("/stock/reorder-level", staff, h.SetReorderLevel)
		inv.GET("/movements", staff, h.Movements)
		inv.GET("/low-stock", staff, h.LowStock)
	}
}
