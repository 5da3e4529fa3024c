package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-ops/clearance-api/internal/middleware"
	"github.com/campus-ops/clearance-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.Claims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.Claims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromClaims(claims *models.Claims) *models.User {
	if claims == nil {
		return nil
	}
	return &models.User{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}
}
