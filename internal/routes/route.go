package routes

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/reviewtrust/internal/config"
	"github.com/joshua-takyi/reviewtrust/internal/container"
	"github.com/joshua-takyi/reviewtrust/internal/handlers"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) (*gin.Engine, error) {
	if container.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := trustProxies(r, container.Config); err != nil {
		return nil, err
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     container.Config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", helpers.DeviceFingerprintHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	throttle, err := middleware.AnonymousRateLimit(container.Config.Pipeline.HTTPRateLimit, container.RedisClient)
	if err != nil {
		return nil, err
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "OK",
				"service": "reviewtrust-api",
			})
		})

		// public routes
		reviews := v1.Group("/reviews")
		reviews.Use(throttle)
		{
			reviews.POST("/anonymous", handlers.SubmitAnonymousReview(container.Pipeline))
			reviews.GET("/verify", handlers.VerifySubmission(container.Pipeline))
			reviews.POST("/verify", handlers.VerifySubmission(container.Pipeline))
			reviews.POST("/:id/resend-verification", handlers.ResendVerification(container.Pipeline))
		}

		v1.GET("/businesses/:id/rating", handlers.GetBusinessRating(container.Pipeline))
	}

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(container.TokenValidator, container.Logger))
	{
		protected.GET("/businesses/:id/alerts/ws", handlers.BusinessAlertsWebSocket(
			container.Businesses, container.Subscriber, container.Config.CORSOrigins, container.Logger))
	}

	admin := protected.Group("/moderation")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/flagged", handlers.ListFlaggedSubmissions(container.ModerationService))
		admin.POST("/submissions/:id", handlers.ModerateSubmission(container.ModerationService))
		admin.GET("/outbox", handlers.OutboxStats(container.Outbox))
	}

	return r, nil
}

// trustProxies limits c.ClientIP to forwarding headers set by known proxies.
// Without configuration every client is identified by its socket address.
func trustProxies(r *gin.Engine, cfg *config.Config) error {
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	switch cfg.TrustedPlatform {
	case config.PlatformCloudflare:
		r.TrustedPlatform = gin.PlatformCloudflare
	case config.PlatformGoogle:
		r.TrustedPlatform = gin.PlatformGoogleAppEngine
	}
	return nil
}
