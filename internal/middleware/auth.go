package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/response"
	"github.com/stemsi/tara/internal/service"
)

const (
	// ContextKeyUser is the Gin context key for the signed-in user.
	ContextKeyUser = "user"
	// ContextKeyCookie is the Gin context key for the raw Cookie header that
	// authenticated the request. It is forwarded to the Results API.
	ContextKeyCookie = "cookie"
)

// LoginChecker resolves the user owning a session cookie.
type LoginChecker interface {
	CheckLogin(ctx context.Context, cookie string) (*model.User, error)
}

// RequireLogin forwards the request's cookies to the auth API and rejects
// the request unless it answers with an authenticated user. Works for
// WebSocket upgrades too since browsers send cookies on the handshake.
func RequireLogin(auth LoginChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := c.GetHeader("Cookie")
		user, err := auth.CheckLogin(c.Request.Context(), cookie)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
				return
			}
			_ = c.Error(err)
			response.AbortFail(c, http.StatusBadGateway, response.ErrAuthUnavailable)
			return
		}

		c.Set(ContextKeyUser, user)
		c.Set(ContextKeyCookie, cookie)
		c.Next()
	}
}

// RequireUser lets through only signed-in users whose id is listed. Use it
// after RequireLogin. An empty list admits nobody.
func RequireUser(ids []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil || !allowed[user.ID] {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		c.Next()
	}
}

// GetUser retrieves the signed-in user from the Gin context.
func GetUser(c *gin.Context) *model.User {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, _ := val.(*model.User)
	return user
}

// GetCookie retrieves the authenticating Cookie header from the Gin context.
func GetCookie(c *gin.Context) string {
	return c.GetString(ContextKeyCookie)
}
