package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "finlink/internal/errors"
)

// APIKeyHeader carries the shared key for scheduler-triggered endpoints.
const APIKeyHeader = "X-API-Key"

// PipelineAuthMiddleware guards the routes an external scheduler calls to
// run background syncs. With no configured key the routes are disabled.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithError(c, apperrors.ErrPipelineNotConfigured)
			return
		}
		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}
