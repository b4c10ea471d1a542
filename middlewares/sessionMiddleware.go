package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware validates the bearer token, checks it has not been
// revoked, and loads the caller's identity into the request context.
// Requests without a token pass through unauthenticated; route guards decide
// what anonymous callers may do.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		// revocation check: logout removes the token mapping
		if _, exists, err := config.GetRedisValue("Token:" + token); err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetRoleInContext(ctx, claims.Role)
		ctx = utils.SetStoreIdInContext(ctx, claims.StoreId)
		if claims.Role == string(models.UserRoleAdmin) {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
