package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/middleware"
	"github.com/instrolab/lims-portal-api/internal/models"
)

func actorFromContext(c *gin.Context) (models.StaffActor, bool) {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return models.StaffActor{}, false
	}
	actor, ok := value.(models.StaffActor)
	return actor, ok
}

func reviewClaimsFromContext(c *gin.Context) *models.ReviewClaims {
	value, exists := c.Get(middleware.ContextReviewKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ReviewClaims)
	if !ok {
		return nil
	}
	return claims
}
