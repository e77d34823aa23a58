// Package middleware provides the gin middleware chain: request
// identification, structured request logging, panic recovery, CORS and
// per-client rate limiting.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestID tags every request with a unique identifier, honoring any
// X-Request-ID the caller supplied.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// Logger logs one structured line per request after it completes. Status
// picks the level: 2xx/3xx info, 4xx warn, 5xx error.
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		fullPath := path
		if raw != "" {
			fullPath = path + "?" + raw
		}

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":     statusCode,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       fullPath,
			"request_id": c.GetString("request_id"),
		})
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			entry = entry.WithField("error", errs)
		}

		switch {
		case statusCode >= 500:
			entry.Error("request processed with error")
		case statusCode >= 400:
			entry.Warn("request processed with warning")
		default:
			entry.Info("request processed")
		}
	}
}
