package middleware

import (
	"crypto/subtle"
	"net/http"

	"invite_mall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	AdminKeyHeader = "X-Admin-Key"
	operatorKey    = "operator_key"
)

type Authorization struct {
	adminKey string
}

func NewAuthorization(adminKey string) *Authorization {
	return &Authorization{
		adminKey: adminKey,
	}
}

// AdminOnly admits requests carrying the configured admin key. With no key
// configured every admin request is refused.
func (a *Authorization) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		key := c.GetHeader(AdminKeyHeader)
		if key == "" {
			log.Info("missing admin key header", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if a.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.adminKey)) != 1 {
			log.Info("unauthorized access attempt to admin endpoint",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(operatorKey, key)
		c.Next()
	}
}

// OperatorKey returns the admin key accepted by AdminOnly.
func OperatorKey(c *gin.Context) string {
	return c.GetString(operatorKey)
}
