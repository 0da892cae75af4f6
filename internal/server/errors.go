package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/payhook/internal/observability/logger"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/zap"
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
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware renders the last handler error unless the handler
// already wrote its own response.
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

// recoverPanic answers a panicking handler with the body its route family
// uses for internal errors. Webhook routes keep the flat provider-facing shape.
func recoverPanic(c *gin.Context, recovered any) {
	obslogger.FromContext(c.Request.Context()).Error("panic recovered",
		zap.String("route", c.FullPath()),
		zap.Any("panic", recovered),
		zap.Stack("stack"),
	)
	_ = c.Error(ErrInternal)

	if strings.HasPrefix(c.FullPath(), webhookRoutePrefix) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, webhookError{
			Error:   "Internal server error",
			Message: "failed to process webhook",
		})
		return
	}
	status, payload := mapError(ErrInternal)
	c.AbortWithStatusJSON(status, errorResponse{Error: payload})
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
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
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

// classifyErrorForLog returns the error_type and error_code request log
// fields. Codes are sentinel strings and never carry request data.
func classifyErrorForLog(err error) (string, string) {
	var sigErr *webhookdomain.SignatureError
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &sigErr):
		return "signature", sigErr.Kind.Error()
	case errors.Is(err, webhookdomain.ErrProviderNotFound):
		return "validation", webhookdomain.ErrProviderNotFound.Error()
	case errors.Is(err, webhookdomain.ErrProviderNotConfigured):
		return "configuration", webhookdomain.ErrProviderNotConfigured.Error()
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		return "validation", webhookdomain.ErrInvalidPayload.Error()
	case errors.Is(err, webhookdomain.ErrStorage):
		return "storage", webhookdomain.ErrStorage.Error()
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation", validationErrorCode(err)
	case isNotFoundError(err):
		return "not_found", "not_found"
	default:
		return "internal", "internal_error"
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
		errors.Is(err, webhookdomain.ErrInvalidPageToken),
		errors.Is(err, userdomain.ErrInvalidUserID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, userdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case asValidationErrors(err) != nil && len(asValidationErrors(err).Errors) > 0:
		return asValidationErrors(err).Errors[0].Code
	case errors.Is(err, webhookdomain.ErrInvalidPageToken):
		return webhookdomain.ErrInvalidPageToken.Error()
	case errors.Is(err, userdomain.ErrInvalidUserID):
		return userdomain.ErrInvalidUserID.Error()
	default:
		return "invalid_request"
	}
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
	default:
		return "invalid value"
	}
}
