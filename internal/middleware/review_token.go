package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/service"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

// ContextReviewKey is the gin context key storing validated review claims.
const ContextReviewKey = "reviewClaims"

// ReviewAuth requires a valid customer review token. Links open in a plain
// browser tab, so the token is accepted from the Authorization header or a
// token query parameter. Access-code enforcement happens in the review
// service, which knows whether the link carries a code.
func ReviewAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := reviewToken(c)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "review token required"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateReviewToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextReviewKey, claims)
		c.Next()
	}
}

func reviewToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1], true
		}
		return "", false
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
