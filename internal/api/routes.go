package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/utils"
)

// registerRoutes wires every endpoint onto the router.
func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/api/v1")
	v1.GET("/health", s.health)

	containers := v1.Group("/containers")
	{
		containers.GET("", s.listContainers)
		containers.GET("/:name", s.getContainer)
		containers.GET("/:name/logs", s.containerLogs)
		containers.POST("/:name/start", s.startContainer)
		containers.POST("/:name/stop", s.stopContainer)
		containers.POST("/:name/restart", s.restartContainer)
		containers.POST("/:name/cleanup", s.cleanupContainer)
	}

	groups := v1.Group("/groups")
	{
		groups.GET("", s.listGroups)
		groups.GET("/:name", s.getGroup)
		groups.POST("/:name/start", s.startGroup)
		groups.POST("/:name/stop", s.stopGroup)
	}

	operations := v1.Group("/operations")
	{
		operations.GET("", s.listOperations)
		operations.GET("/:id", s.getOperation)
		operations.DELETE("/:id", s.cancelOperation)
		operations.GET("/:id/events", s.operationEvents)
		operations.POST("/stop-all", s.stopAll)
		operations.POST("/restart-all", s.restartAll)
		operations.POST("/cleanup-all", s.cleanupAll)
	}

	s.router.NoRoute(func(c *gin.Context) {
		utils.NotFound(c, "Endpoint not found")
	})
}

// health reports server liveness and runtime reachability. The endpoint
// stays 200 even when the daemon is down; the payload carries the detail.
func (s *Server) health(c *gin.Context) {
	status := models.HealthStatus{
		Status:    "ok",
		RuntimeOK: true,
		Version:   s.config.Version,
	}
	if err := s.adapter.Ping(c.Request.Context()); err != nil {
		status.Status = "degraded"
		status.RuntimeOK = false
		status.RuntimeDetail = err.Error()
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: status})
}
