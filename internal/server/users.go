package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/pkg/db/pagination"
)

func (s *Server) ListUserWebhooks(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	exists, err := s.userSvc.Exists(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !exists {
		AbortWithError(c, ErrNotFound)
		return
	}
	s.listWebhooks(c, userID)
}

func (s *Server) ListWebhooksByUser(c *gin.Context) {
	s.listWebhooks(c, strings.TrimSpace(c.Param("user_id")))
}

func (s *Server) listWebhooks(c *gin.Context, userID string) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.ListUserWebhooks(c.Request.Context(), webhookdomain.ListUserWebhooksRequest{
		UserID:    userID,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type customerUserResponse struct {
	UserID *string `json:"user_id"`
}

func (s *Server) GetUserByCustomer(c *gin.Context) {
	userID, err := s.userSvc.FindByCustomer(c.Request.Context(), strings.TrimSpace(c.Param("customer_id")))
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			c.JSON(http.StatusOK, customerUserResponse{})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, customerUserResponse{UserID: &userID})
}
