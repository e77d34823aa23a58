package middleware

import (
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/models"
)

// Recovery converts handler panics into 500 responses instead of tearing
// down the connection. Broken-pipe panics are logged and dropped since the
// client is already gone.
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				var brokenPipe bool
				if ne, ok := err.(*net.OpError); ok {
					if se, ok := ne.Err.(*os.SyscallError); ok {
						msg := strings.ToLower(se.Error())
						if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer") {
							brokenPipe = true
						}
					}
				}

				logger.WithFields(logrus.Fields{
					"error":      err,
					"stack":      string(debug.Stack()),
					"client_ip":  c.ClientIP(),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString("request_id"),
				}).Error("panic recovered")

				if brokenPipe {
					c.Abort()
					return
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, models.Response{
					Success: false,
					Error: &models.APIError{
						Code:    models.CodeInternalError,
						Message: "An internal server error occurred",
					},
					Meta: &models.Meta{
						Timestamp: time.Now(),
						RequestID: c.GetString("request_id"),
					},
				})
			}
		}()
		c.Next()
	}
}
