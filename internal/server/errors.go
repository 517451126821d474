package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	"github.com/smallbiznis/bundleworks/internal/entitlement"
	feesdomain "github.com/smallbiznis/bundleworks/internal/fees"
	meterdomain "github.com/smallbiznis/bundleworks/internal/meter/domain"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	"github.com/smallbiznis/bundleworks/internal/quota"
	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "quota exceeded for this cycle",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, quota.ErrUnknownFeature):
		return http.StatusForbidden, errorPayload{
			Type:    "unknown_feature",
			Message: "feature is not declared by any active bundle",
		}
	case errors.Is(err, quota.ErrNotEntitled):
		return http.StatusForbidden, errorPayload{
			Type:    "not_entitled",
			Message: "subscription is not entitled",
		}
	case errors.Is(err, paymentdomain.ErrPaymentFailed),
		errors.Is(err, subscriptiondomain.ErrPaymentMethodRequired):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: "payment could not be collected",
		}
	case errors.Is(err, subscriptiondomain.ErrAlreadyExists),
		errors.Is(err, subscriptiondomain.ErrStateConflict),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrBundleChangeForbidden):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, catalog.ErrInvalidBundle),
		errors.Is(err, cycle.ErrInvalidInterval),
		errors.Is(err, entitlement.ErrInvalidCapability),
		errors.Is(err, feesdomain.ErrUnknownTier),
		errors.Is(err, feesdomain.ErrInvalidAmount),
		errors.Is(err, meterdomain.ErrInvalidAmount),
		errors.Is(err, meterdomain.ErrInvalidFeature),
		errors.Is(err, meterdomain.ErrInvalidKey),
		errors.Is(err, revenuedomain.ErrInvalidAmount),
		errors.Is(err, revenuedomain.ErrInvalidKey),
		errors.Is(err, revenuedomain.ErrInvalidSource),
		errors.Is(err, subscriptiondomain.ErrInvalidWorkspace),
		errors.Is(err, subscriptiondomain.ErrInvalidTier),
		errors.Is(err, paymentdomain.ErrInvalidCharge):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
