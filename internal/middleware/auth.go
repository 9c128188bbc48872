package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/auth"
)

// Context keys for claims stored in gin.Context. Handlers read them through
// the helpers below rather than c.Get directly.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyTenantID = "tenant_id"
)

// AuthMiddleware validates the bearer token issued by the CRM and stores the
// caller's tenant and user in the request context. Requests without a valid
// token never reach the handler.
//
// Why reject a nil tenant with 403 instead of 401?
//   - The token is authentic; it just is not scoped to a tenant (for
//     example a CRM system token). Retrying with the same token will not
//     help, and 401 would suggest it might.
//   - Every handler behind this middleware reads credentials by tenant. A
//     nil tenant would silently address an empty configuration.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		// "Bearer eyJhbG..." -> ["Bearer", "eyJhbG..."]
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}
		if claims.TenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "token is not scoped to a tenant",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Next()
	}
}

// GetUserID returns uuid.Nil when the key is missing, which fails any
// tenant-scoped query harmlessly.
func GetUserID(c *gin.Context) uuid.UUID {
	return getUUID(c, ContextKeyUserID)
}

func GetTenantID(c *gin.Context) uuid.UUID {
	return getUUID(c, ContextKeyTenantID)
}

func getUUID(c *gin.Context, key string) uuid.UUID {
	val, exists := c.Get(key)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
