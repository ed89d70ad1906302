package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-service/internal/auth"
	"task-service/internal/model"
)

const (
	claimsContextKey    = "tokenClaims"
	principalContextKey = "principal"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer"
	accessTokenQuery    = "access_token"
)

// ProfileLoader resolves the caller's current role from the profiles table.
type ProfileLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

// Auth authenticates the bearer token. When profiles is non-nil the role is
// read from the caller's profile row instead of the token.
func Auth(parser *auth.Parser, profiles ProfileLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing", "code": "UNAUTHORIZED"})
			return
		}

		claims, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "UNAUTHORIZED"})
			return
		}

		principal := model.Principal{
			UserID: claims.UserID,
			Role:   claims.Role,
		}

		if profiles != nil {
			profile, err := profiles.GetByID(c.Request.Context(), claims.UserID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "profile not found", "code": "FORBIDDEN"})
				return
			case err != nil:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "could not load profile", "code": "SERVICE_UNAVAILABLE"})
				return
			}
			principal.Role = profile.Role
		}

		if !principal.Role.Valid() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown role", "code": "FORBIDDEN"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

// bearerToken reads the Authorization header. EventSource clients cannot set
// headers, so the access_token query parameter is accepted as a fallback.
func bearerToken(c *gin.Context) (string, bool) {
	rawHeader := c.GetHeader(authorizationHeader)
	if rawHeader == "" {
		if token := c.Query(accessTokenQuery); token != "" {
			return token, true
		}
		return "", false
	}

	parts := strings.SplitN(rawHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerPrefix) || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func MustPrincipal(c *gin.Context) (model.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return model.Principal{}, false
	}

	principal, ok := value.(model.Principal)
	if !ok {
		return model.Principal{}, false
	}

	return principal, true
}

// SetPrincipal is used by tests that bypass token parsing.
func SetPrincipal(c *gin.Context, principal model.Principal) {
	c.Set(principalContextKey, principal)
}
