package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

type changeBundlesRequest struct {
	BundleCodes []string `json:"bundle_codes"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

func (s *Server) GetSubscription(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))

	view, err := s.subscriptionSvc.GetByWorkspace(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ChangeBundles(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))

	var req changeBundlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	result, err := s.subscriptionSvc.ChangeBundles(c.Request.Context(), subscriptiondomain.ChangeBundlesRequest{
		WorkspaceID: workspaceID,
		BundleCodes: req.BundleCodes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.entitlements.Invalidate(workspaceID)
	c.JSON(http.StatusOK, result)
}

func (s *Server) PauseSubscription(c *gin.Context) {
	s.transition(c, s.subscriptionSvc.Pause)
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	s.transition(c, s.subscriptionSvc.Resume)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.transition(c, s.subscriptionSvc.Cancel)
}

func (s *Server) transition(c *gin.Context, fn func(ctx context.Context, workspaceID string) error) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))

	if err := fn(c.Request.Context(), workspaceID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.entitlements.Invalidate(workspaceID)

	view, err := s.subscriptionSvc.GetByWorkspace(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
