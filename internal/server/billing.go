package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListBillingRecords(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))

	records, err := s.billingSvc.ListRecords(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workspace_id": workspaceID,
		"records":      records,
	})
}
