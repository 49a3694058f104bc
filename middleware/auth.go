// Package middleware holds the gin middleware shared by every route group.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phillip/haojiu-go/auth"
	"github.com/phillip/haojiu-go/logger"
)

const sessionKey = "session"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Session, error)
}

// AuthRequired resolves the bearer token to a session and stores it on
// the context. Browsers cannot set headers on a WebSocket upgrade, so the
// access_token query parameter is accepted too.
func AuthRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		sess, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Debug.Printf("[auth] rejected token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := Session(c)
		if !sess.IsAdmin() {
			logger.Warn.Printf("[auth] non-admin blocked from %s", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// Session returns the request's session, or nil outside AuthRequired.
func Session(c *gin.Context) *auth.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*auth.Session)
	return sess
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return c.Query("access_token")
}
