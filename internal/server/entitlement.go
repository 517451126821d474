package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) CheckCapability(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))
	capability := strings.TrimSpace(c.Param("capability"))

	decision, err := s.entitlements.Check(c.Request.Context(), workspaceID, capability)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) ListCapabilities(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))

	capabilities, err := s.entitlements.Capabilities(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workspace_id": workspaceID,
		"capabilities": capabilities,
	})
}
