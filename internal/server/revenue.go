package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
)

func (s *Server) RecordRevenue(c *gin.Context) {
	var req revenuedomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	result, err := s.revenueSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Duplicates are absorbed, not rejected; 200 either way.
	c.JSON(http.StatusOK, result)
}
