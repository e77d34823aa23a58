package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/utils"
)

// RateLimit rejects clients that exceed the per-IP token bucket with 429.
func RateLimit(limiter *utils.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(utils.GetClientIP(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{
				Success: false,
				Error: &models.APIError{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many requests, slow down",
				},
				Meta: &models.Meta{
					Timestamp: time.Now(),
					RequestID: c.GetString("request_id"),
				},
			})
			return
		}
		c.Next()
	}
}
