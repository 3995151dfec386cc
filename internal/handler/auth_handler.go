package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scielo-br/pid-provider/internal/dto"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
	"github.com/scielo-br/pid-provider/pkg/response"
)

type authService interface {
	Token(ctx context.Context, req dto.LoginRequest) (*dto.TokenResponse, error)
}

// AuthHandler serves the token endpoint.
type AuthHandler struct {
	service authService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service authService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Token exchanges credentials for an access token. The response body is the
// bare {access: <token>} object requesting clients expect, not the envelope.
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "username and password are required"))
		return
	}
	resp, err := h.service.Token(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
