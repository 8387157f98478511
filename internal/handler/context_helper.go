package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ayushichauhan770/civicseva-api/internal/middleware"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// claimsFromContext extracts the authenticated user's claims set by the
// JWT middleware. Returns nil when the request is unauthenticated.
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
