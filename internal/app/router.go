package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/handler"
	"github.com/StefanPetk0vic/Locus/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	DriverHandler  *handler.DriverHandler
	PaymentHandler *handler.PaymentHandler
	Socket         http.Handler
	Tokens         middleware.TokenParser
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Log            *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	// Unauthenticated: the gateway signs its own requests and the socket
	// authenticates during the handshake.
	v1.POST("/payments/webhook", deps.PaymentHandler.Webhook)
	v1.GET("/ws", gin.WrapH(deps.Socket))

	api := v1.Group("")
	api.Use(middleware.AuthMiddleware(deps.Tokens))
	api.Use(middleware.CallerAttributes())
	api.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Log))
	{
		// Ride routes.
		rides := api.Group("/rides")
		{
			rides.POST("", middleware.RequireRole(domain.RoleRider), deps.RideHandler.RequestRide)
			rides.GET("", deps.RideHandler.ListRides)
			rides.GET("/completed", deps.RideHandler.ListCompleted)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/accept", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.AcceptRide)
			rides.POST("/:id/start", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.StartRide)
			rides.POST("/:id/complete", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.CompleteRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/rebroadcast", middleware.RequireRole(domain.RoleRider), deps.RideHandler.Rebroadcast)
		}

		// Driver routes.
		drivers := api.Group("/drivers", middleware.RequireRole(domain.RoleDriver))
		{
			drivers.POST("/location", deps.DriverHandler.UpdateLocation)
			drivers.POST("/offline", deps.DriverHandler.GoOffline)
		}

		// Payment routes.
		payments := api.Group("/payments")
		{
			payments.GET("/invoices", deps.PaymentHandler.ListInvoices)
			payments.GET("/methods", middleware.RequireRole(domain.RoleRider), deps.PaymentHandler.GetPaymentMethod)
			payments.POST("/methods", middleware.RequireRole(domain.RoleRider), deps.PaymentHandler.AddPaymentMethod)
			payments.DELETE("/methods", middleware.RequireRole(domain.RoleRider), deps.PaymentHandler.RemovePaymentMethod)
		}
	}

	return router
}
