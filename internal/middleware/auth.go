// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request tracing.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Scope check → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user identity and scopes; scope checks read from that context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/db/repositories"
)

// Context keys set by the auth middleware.
const (
	ContextUser   = "user"
	ContextUserID = "user_id"
	ContextScopes = "scopes"
)

// AuthMiddleware validates the bearer JWT and loads the user into the request
// context. Requests without valid credentials are rejected with 401.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextScopes, claims.Scopes)

		c.Next()
	}
}

// OptionalAuthMiddleware is the same as AuthMiddleware but never aborts.
// Handlers behind it see an empty actor ID for anonymous callers and respond
// with their anonymous shape (empty lists, no-op writes) instead of 401.
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err == nil && user != nil {
				c.Set(ContextUser, user)
				c.Set(ContextUserID, user.ID)
				c.Set(ContextScopes, claims.Scopes)
			}
		}

		c.Next()
	}
}

// RequireScope aborts with 403 unless the authenticated caller holds the
// required scope. Must run after AuthMiddleware.
func RequireScope(required auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes := ScopesFromContext(c)
		if !auth.HasScope(scopes, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// ActorID returns the authenticated user's ID, or "" for anonymous callers.
func ActorID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// ScopesFromContext returns the caller's scopes, or nil for anonymous callers.
func ScopesFromContext(c *gin.Context) []string {
	value, exists := c.Get(ContextScopes)
	if !exists {
		return nil
	}
	scopes, _ := value.([]string)
	return scopes
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
