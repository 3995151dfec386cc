package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/scielo-br/pid-provider/internal/middleware"
	"github.com/scielo-br/pid-provider/internal/models"
)

// claimsFromContext extracts the authenticated requester placed on the
// context by the JWT middleware. Every registration is attributed to this
// identity, so handlers treat a missing or mistyped value as unauthenticated
// rather than guessing.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
