package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devcage/devcage/internal/utils"
)

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.coordinator.ListGroups(c.Request.Context())
	if err != nil {
		utils.MapError(c, err)
		return
	}
	utils.SuccessResponse(c, groups)
}

func (s *Server) getGroup(c *gin.Context) {
	status, err := s.coordinator.GroupStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	utils.SuccessResponse(c, status)
}

func (s *Server) startGroup(c *gin.Context) {
	snap, err := s.coordinator.StartGroup(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

func (s *Server) stopGroup(c *gin.Context) {
	snap, err := s.coordinator.StopGroup(c.Param("name"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}
