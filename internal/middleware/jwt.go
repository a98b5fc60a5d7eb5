package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/service"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

// ContextActorKey is the gin context key storing the authenticated staff actor.
const ContextActorKey = "staffActor"

// StaffAuth requires a valid staff token minted by the central LIMS auth
// service and stores the resolved actor on the context. Browser transports
// that cannot set headers (the session event stream) may pass the token as
// an access_token query parameter instead.
func StaffAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := staffToken(c)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateStaffToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, models.StaffActor{
			UserID:    claims.UserID,
			FullName:  claims.FullName,
			Role:      claims.Role,
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Next()
	}
}

func staffToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("access_token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
