package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
)

type webhookAccepted struct {
	Received     bool   `json:"received"`
	EventType    string `json:"event_type"`
	PayloadStyle string `json:"payload_style"`
}

type webhookError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HandleWebhook passes the body through byte-for-byte; signatures are
// computed over the exact bytes the provider sent.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		message := "failed to read request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "request body too large"
		}
		abortWebhook(c, webhookdomain.ErrInvalidPayload, http.StatusBadRequest, webhookError{
			Error:   "Invalid payload",
			Message: message,
		})
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		status, body := webhookErrorResponse(err)
		abortWebhook(c, err, status, body)
		return
	}

	c.Set("event_type", result.EventType)
	c.JSON(http.StatusOK, webhookAccepted{
		Received:     true,
		EventType:    result.EventType,
		PayloadStyle: result.PayloadStyle,
	})
}

func abortWebhook(c *gin.Context, err error, status int, body webhookError) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// webhookErrorResponse keeps rejections before verification at 400 so the
// provider does not retry them, and everything after at 500 so it does.
func webhookErrorResponse(err error) (int, webhookError) {
	var sigErr *webhookdomain.SignatureError
	switch {
	case errors.As(err, &sigErr) && errors.Is(err, webhookdomain.ErrMissingSignature):
		return http.StatusBadRequest, webhookError{Error: "Missing " + sigErr.Header + " header"}
	case errors.As(err, &sigErr) && errors.Is(err, webhookdomain.ErrInvalidSignature):
		return http.StatusBadRequest, webhookError{
			Error:   "Webhook signature verification failed",
			Message: sigErr.Detail,
		}
	case errors.Is(err, webhookdomain.ErrProviderNotFound):
		return http.StatusBadRequest, webhookError{Error: "Unsupported webhook provider"}
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		return http.StatusBadRequest, webhookError{Error: "Invalid payload"}
	default:
		return http.StatusInternalServerError, webhookError{
			Error:   "Internal server error",
			Message: "failed to process webhook",
		}
	}
}
