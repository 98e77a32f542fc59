package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/domain"
	"employee_directory/internal/service"
	"employee_directory/pkg/logger"
)

// Context keys set by RequireAuth.
const (
	IdentityKey = "identity"
	UserIDKey   = "user_id"
)

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		identity, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			m.log.Debug("Rejected token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(IdentityKey, *identity)
		c.Set(UserIDKey, identity.UserID)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// CurrentIdentity returns the identity stored by RequireAuth.
func CurrentIdentity(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
