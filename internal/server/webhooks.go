package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
)

// PaymentWebhook consumes asynchronous charge confirmations from the payment
// provider and folds them into subscription state. Providers retry webhooks,
// so a delivery that changes nothing is still acknowledged.
func (s *Server) PaymentWebhook(c *gin.Context) {
	var event paymentdomain.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if strings.TrimSpace(event.WorkspaceID) == "" || strings.TrimSpace(event.EventID) == "" {
		AbortWithError(c, newValidationError("event", "invalid_event", "workspace_id and event_id are required"))
		return
	}

	err := s.subscriptionSvc.RecordChargeOutcome(c.Request.Context(), event.WorkspaceID, event.Succeeded)
	if err != nil {
		s.log.Warn("webhook charge outcome not applied",
			zap.String("workspace_id", event.WorkspaceID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	s.entitlements.Invalidate(event.WorkspaceID)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
