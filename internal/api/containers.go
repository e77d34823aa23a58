package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devcage/devcage/internal/utils"
)

func (s *Server) listContainers(c *gin.Context) {
	details, err := s.coordinator.ListContainers(c.Request.Context())
	if err != nil {
		utils.MapError(c, err)
		return
	}
	utils.SuccessResponse(c, details)
}

func (s *Server) getContainer(c *gin.Context) {
	detail, err := s.coordinator.ContainerStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	utils.SuccessResponse(c, detail)
}

func (s *Server) startContainer(c *gin.Context) {
	snap, err := s.coordinator.StartContainer(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

func (s *Server) stopContainer(c *gin.Context) {
	snap, err := s.coordinator.StopContainer(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

func (s *Server) restartContainer(c *gin.Context) {
	snap, err := s.coordinator.RestartContainer(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

func (s *Server) cleanupContainer(c *gin.Context) {
	snap, err := s.coordinator.CleanupContainer(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}
