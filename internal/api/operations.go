package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devcage/devcage/internal/models"
	"github.com/devcage/devcage/internal/utils"
)

// accepted writes the 202 envelope for a freshly registered operation.
func accepted(c *gin.Context, snap models.OperationSnapshot) {
	utils.AcceptedResponse(c, models.OperationAccepted{
		OperationID: snap.ID,
		Kind:        snap.Kind,
		Targets:     snap.Targets,
	})
}

// listOperations returns a snapshot of every tracked operation.
func (s *Server) listOperations(c *gin.Context) {
	utils.SuccessResponse(c, s.orchestrator.List())
}

// getOperation returns the point-in-time snapshot for one operation.
func (s *Server) getOperation(c *gin.Context) {
	snap, err := s.orchestrator.Status(c.Param("id"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	utils.SuccessResponse(c, snap)
}

// cancelOperation requests best-effort cancellation.
func (s *Server) cancelOperation(c *gin.Context) {
	if err := s.orchestrator.Cancel(c.Param("id")); err != nil {
		utils.MapError(c, err)
		return
	}
	snap, err := s.orchestrator.Status(c.Param("id"))
	if err != nil {
		utils.MapError(c, err)
		return
	}
	// Cancellation is best-effort; in-flight targets settle on their own.
	utils.AcceptedResponse(c, snap)
}

// stopAll stops every managed container found right now.
func (s *Server) stopAll(c *gin.Context) {
	snap, err := s.coordinator.StopAll(c.Request.Context())
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

// restartAll restarts every managed container found right now.
func (s *Server) restartAll(c *gin.Context) {
	snap, err := s.coordinator.RestartAll(c.Request.Context())
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}

// cleanupAll removes every managed container found right now.
func (s *Server) cleanupAll(c *gin.Context) {
	snap, err := s.coordinator.CleanupAll(c.Request.Context())
	if err != nil {
		utils.MapError(c, err)
		return
	}
	accepted(c, snap)
}
