package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl sets a private Cache-Control header. Question lists are
// per-user views and must never sit in a shared cache.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	value := "no-store"
	if maxAgeSeconds > 0 {
		value = fmt.Sprintf("private, max-age=%d", maxAgeSeconds)
	}
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
