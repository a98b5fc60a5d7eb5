package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

// FeatureGate hides a route group behind a config switch. Disabled
// features answer 404 so a probe cannot tell a switched-off feature from
// an absent one.
func FeatureGate(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "feature not enabled"))
			c.Abort()
			return
		}
		c.Next()
	}
}
