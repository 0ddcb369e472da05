// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file binds the auth package to Gin: Authenticate resolves the caller's
// identity once per request and stashes it in the context, and RequireAdmin
// gates the admin route group. Handlers read the identity back with
// IdentityFrom instead of parsing headers themselves.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/conversation-engine/internal/auth"
)

const ctxKeyIdentity = "identity"

// Authenticate resolves the caller's identity via the given resolver and
// aborts with 401 when no identity can be established. The resolved identity
// is stored under the "identity" key and the user id additionally under
// "userID" for the logging and rate-limit middleware.
func Authenticate(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Set("userID", id.UserID)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated identity is an admin.
// Place after Authenticate on admin route groups.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "admin access required",
			})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity attached by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
