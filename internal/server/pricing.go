package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/bundleworks/internal/cycle"
)

type computePriceRequest struct {
	BundleCodes []string `json:"bundle_codes"`
	Interval    string   `json:"interval"`
}

type computeFeeRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	PlanTier    string `json:"plan_tier"`
}

func (s *Server) ComputePrice(c *gin.Context) {
	var req computePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	interval, err := cycle.ParseInterval(req.Interval)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.pricingEngine.ComputePrice(req.BundleCodes, interval)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) ComputeFee(c *gin.Context) {
	var req computeFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	breakdown, err := s.feeCalculator.ComputeFee(req.AmountMinor, req.PlanTier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}
