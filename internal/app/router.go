package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"courier/internal/handler"
	"courier/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	OfferHandler  *handler.OfferHandler
	StreamHandler *handler.StreamHandler
	RedisClient   *redis.Client
	NewRelicApp   *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		offer := v1.Group("/offer")
		{
			offer.GET("", deps.OfferHandler.Get)
			offer.GET("/stream", deps.StreamHandler.Stream)

			// Decision routes are guarded against client retries.
			actions := offer.Group("")
			actions.Use(middleware.Idempotency(deps.RedisClient))
			{
				actions.POST("/view", deps.OfferHandler.View)
				actions.POST("/decline", deps.OfferHandler.Decline)
				actions.POST("/decline/cancel", deps.OfferHandler.CancelDecline)
				actions.POST("/decline/confirm", deps.OfferHandler.ConfirmDecline)
				actions.POST("/alert/ack", deps.OfferHandler.AckAlert)
			}
		}
	}

	return router
}
