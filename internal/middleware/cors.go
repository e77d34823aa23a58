package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls the cross-origin policy.
type CORSConfig struct {
	// AllowOrigins lists allowed origins; "*" matches any
	AllowOrigins []string
	// AllowMethods lists methods the client may use
	AllowMethods []string
	// AllowHeaders lists non-simple headers the client may send
	AllowHeaders []string
	// MaxAge caps how long preflight results may be cached
	MaxAge time.Duration
}

// DefaultCORSConfig returns a permissive policy suitable for a trusted
// development network.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS returns the middleware with default configuration.
func CORS() gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig())
}

// CORSWithConfig returns the CORS middleware with custom configuration.
func CORSWithConfig(config CORSConfig) gin.HandlerFunc {
	maxAgeSeconds := int(config.MaxAge.Seconds())

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" || !originAllowed(config.AllowOrigins, origin) {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
			c.Header("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAgeSeconds))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
