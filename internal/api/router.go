package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/skyroute-bookings/internal/domain"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, limiter domain.RateLimiter, logger *logrus.Logger, ginMode string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogger(logger))
	router.Use(CORSMiddleware())

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		offers := v1.Group("/offers")
		offers.Use(RateLimitMiddleware(limiter, logger))
		{
			offers.GET("/:id", handler.GetOffer)
			offers.GET("/:id/services", handler.ListOfferServices)
		}

		bookings := v1.Group("/bookings")
		{
			bookings.POST("/price", handler.PricePreview)
			bookings.POST("", handler.StartBooking)
			bookings.GET("/:id", handler.GetBooking)
			bookings.POST("/:id/resume", handler.ResumeBooking)
			bookings.POST("/:id/retry", handler.RetryBooking)
			bookings.DELETE("/:id", handler.AbandonBooking)
		}
	}

	return router
}
