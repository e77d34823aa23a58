// Package utils holds the HTTP response helpers and small shared plumbing
// used by the API layer.
package utils

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/devcage/devcage/internal/models"
)

// SuccessResponse writes the standard success envelope.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Data:    data,
		Meta: &models.Meta{
			Timestamp: time.Now(),
			RequestID: c.GetString("request_id"),
		},
	})
}

// AcceptedResponse writes the standard envelope with 202, used when an
// asynchronous operation has been registered.
func AcceptedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, models.Response{
		Success: true,
		Data:    data,
		Meta: &models.Meta{
			Timestamp: time.Now(),
			RequestID: c.GetString("request_id"),
		},
	})
}

// ErrorResponse writes the standard error envelope and logs it. Client
// errors log at info, server errors at error.
func ErrorResponse(c *gin.Context, statusCode int, code, message, details string) {
	logEntry := logrus.WithFields(logrus.Fields{
		"status_code": statusCode,
		"error_code":  code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"request_id":  c.GetString("request_id"),
	})
	if details != "" {
		logEntry = logEntry.WithField("details", details)
	}
	if statusCode >= 500 {
		logEntry.WithField("message", message).Error("API error response")
	} else {
		logEntry.WithField("message", message).Info("API client error response")
	}

	c.JSON(statusCode, models.Response{
		Success: false,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &models.Meta{
			Timestamp: time.Now(),
			RequestID: c.GetString("request_id"),
		},
	})
}

// BadRequest returns a 400 response.
func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, models.CodeValidationError, message, "")
}

// NotFound returns a 404 response.
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "The requested resource was not found"
	}
	ErrorResponse(c, http.StatusNotFound, models.CodeNotFound, message, "")
}

// Conflict returns a 409 response.
func Conflict(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusConflict, models.CodeConflict, message, "")
}

// ServiceUnavailable returns a 503 response.
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, models.CodeRuntimeUnavailable, message, "")
}

// InternalServerError returns a 500 response.
func InternalServerError(c *gin.Context, message string) {
	if message == "" {
		message = "An internal server error occurred"
	}
	ErrorResponse(c, http.StatusInternalServerError, models.CodeInternalError, message, "")
}

// MapError translates the error taxonomy into the matching HTTP response.
func MapError(c *gin.Context, err error) {
	switch {
	case models.IsNotFound(err):
		NotFound(c, err.Error())
	case models.IsValidation(err):
		BadRequest(c, err.Error())
	case models.IsRuntimeUnavailable(err):
		ServiceUnavailable(c, err.Error())
	case models.IsOperationTerminal(err):
		Conflict(c, err.Error())
	default:
		InternalServerError(c, err.Error())
	}
}

// GetClientIP extracts the originating client IP, preferring proxy headers
// gin has already vetted against the trusted proxy list.
func GetClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	host := c.Request.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// RateLimiter hands out one token-bucket limiter per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter pool allowing rps requests per second
// with the given burst per key.
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the key may proceed right now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	rl.lastSeen[key] = time.Now()
	rl.mu.Unlock()
	return limiter.Allow()
}

// Cleanup drops limiters idle for longer than maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, seen := range rl.lastSeen {
		if time.Since(seen) > maxAge {
			delete(rl.limiters, key)
			delete(rl.lastSeen, key)
		}
	}
}

// StartJanitor runs Cleanup every interval until the returned stop func is
// called, keeping the per-key map bounded in a long-lived server.
func (rl *RateLimiter) StartJanitor(interval, maxAge time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.Cleanup(maxAge)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
