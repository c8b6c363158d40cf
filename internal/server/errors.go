package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	catalogdomain "github.com/smallbiznis/creatorpay/internal/catalog/domain"
	coupondomain "github.com/smallbiznis/creatorpay/internal/coupon/domain"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"github.com/smallbiznis/creatorpay/internal/settings"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"gorm.io/gorm"
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
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
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
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, paymentdomain.ErrSourceNotAllowed):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, balancedomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: "insufficient balance",
			Code:    balancedomain.ErrInsufficientBalance.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    err.Error(),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, orderdomain.ErrInvalidOrderStatus),
		errors.Is(err, orderdomain.ErrNotShippable),
		errors.Is(err, orderdomain.ErrOutOfStock),
		errors.Is(err, paymentdomain.ErrInvalidTransactionState):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    err.Error(),
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway error",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gatewayconfigdomain.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	orderdomain.ErrInvalidBuyer,
	orderdomain.ErrInvalidItem,
	orderdomain.ErrItemNotForSale,
	orderdomain.ErrDifferentSeller,
	orderdomain.ErrEmptyCart,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidPeriod,
	orderdomain.ErrPriceOutOfBounds,
	orderdomain.ErrInvalidGateway,
	paymentdomain.ErrInvalidGateway,
	paymentdomain.ErrInvalidConfig,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	paymentdomain.ErrUnsupportedOperation,
	gatewayconfigdomain.ErrInvalidGateway,
	gatewayconfigdomain.ErrInvalidConfig,
	gatewayconfigdomain.ErrGatewayNotConfigured,
	walletdomain.ErrAmountOutOfBounds,
	balancedomain.ErrInvalidAmount,
	coupondomain.ErrCouponNotFound,
	coupondomain.ErrCouponExpired,
	coupondomain.ErrCouponUsageExceeded,
	subscriptiondomain.ErrInvalidSubscription,
	settings.ErrInvalidSettings,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidAction,
}

var notFoundErrors = []error{
	ErrNotFound,
	orderdomain.ErrOrderNotFound,
	paymentdomain.ErrTransactionNotFound,
	paymentdomain.ErrProviderNotFound,
	subscriptiondomain.ErrSubscriptionNotFound,
	walletdomain.ErrChatSessionNotFound,
	balancedomain.ErrAccountNotFound,
	catalogdomain.ErrUserNotFound,
	catalogdomain.ErrPerformerNotFound,
	catalogdomain.ErrItemNotFound,
	catalogdomain.ErrProductNotFound,
	catalogdomain.ErrWalletPackageNotFound,
	gatewayconfigdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

func isValidationError(err error) bool {
	return matchesAny(err, validationErrors)
}

func isNotFoundError(err error) bool {
	return matchesAny(err, notFoundErrors)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
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

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "price_out_of_bounds", "amount_out_of_bounds":
		return "amount outside the allowed range"
	case "gateway_not_configured":
		return "payment gateway is not configured"
	default:
		return "invalid value"
	}
}
