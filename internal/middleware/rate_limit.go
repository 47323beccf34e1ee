package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// AnonymousRateLimit throttles the unauthenticated review endpoints per client IP.
// The counters live in Redis when a client is given so every instance shares them.
// rate uses the limiter format, e.g. "30-M".
func AnonymousRateLimit(rate string, client *redis.Client) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: "reviewtrust:throttle",
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	instance := limiter.New(store, parsed)
	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				helpers.CodedErrorResponse("rate_limited", "Too many requests, slow down"))
		}),
	), nil
}
