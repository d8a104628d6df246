package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"chainless-core/internal/handler"
	"chainless-core/internal/handler/middleware"
	"chainless-core/internal/server/routes"
	"chainless-core/internal/service/guard"
	"chainless-core/pkg/monitor"
	"chainless-core/pkg/validator"
)

// Handlers HTTP 层依赖的全部 handler
type Handlers struct {
	Health   *handler.HealthHandler
	Account  *handler.AccountHandler
	Wallet   *handler.WalletHandler
	Transfer *handler.TransferHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers, sessions *guard.SessionStore) *gin.Engine {
	monitor.Init()
	validator.Init()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(monitor.PrometheusMiddleware())

	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.Auth(sessions)
	api := r.Group("/api/v1")
	routes.RegisterAccountRoutes(api, h.Account, auth)
	routes.RegisterWalletRoutes(api, h.Wallet, auth)
	routes.RegisterTransferRoutes(api, h.Transfer, auth)

	return r
}
