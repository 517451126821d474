package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	obsmetrics "github.com/smallbiznis/bundleworks/internal/observability/metrics"
	"github.com/smallbiznis/bundleworks/internal/quota"
)

func (s *Server) ConsumeUsage(c *gin.Context) {
	var req quota.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	if !s.allowConsume(c, req.WorkspaceID) {
		return
	}

	result, err := s.quotaSvc.Consume(c.Request.Context(), req)
	s.observeConsume(req.FeatureID, result, err)
	if err != nil {
		// A denial still carries the counter state the caller needs.
		if result.CycleID != "" {
			c.JSON(mapErrorStatus(err), gin.H{"error": errType(err), "result": result})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetUsage(c *gin.Context) {
	workspaceID := strings.TrimSpace(c.Param("workspace_id"))
	featureID := strings.TrimSpace(c.Param("feature_id"))

	result, err := s.quotaSvc.Usage(c.Request.Context(), workspaceID, featureID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// allowConsume applies the endpoint and workspace token buckets. Limiter
// errors fail open; losing rate limiting is better than refusing usage.
func (s *Server) allowConsume(c *gin.Context, workspaceID string) bool {
	res, err := s.limiter.AllowEndpoint(c.Request.Context())
	if err == nil && !res.Allowed {
		AbortWithError(c, ErrTooManyRequests)
		return false
	}
	res, err = s.limiter.AllowWorkspace(c.Request.Context(), workspaceID)
	if err == nil && !res.Allowed {
		AbortWithError(c, ErrTooManyRequests)
		return false
	}
	return true
}

func (s *Server) observeConsume(featureID string, result quota.Result, err error) {
	m := obsmetrics.Quota()
	switch {
	case err == nil && result.Deduplicated:
		m.IncDecision(featureID, obsmetrics.QuotaOutcomeDeduplicated)
	case err == nil:
		m.IncDecision(featureID, obsmetrics.QuotaOutcomeAllowed)
	default:
		m.IncDecision(featureID, errOutcome(err))
	}
}

func errOutcome(err error) string {
	if errors.Is(err, quota.ErrUnknownFeature) {
		return obsmetrics.QuotaOutcomeUnknown
	}
	return obsmetrics.QuotaOutcomeDenied
}

func mapErrorStatus(err error) int {
	status, _ := mapError(err)
	return status
}

func errType(err error) string {
	_, payload := mapError(err)
	return payload.Type
}
