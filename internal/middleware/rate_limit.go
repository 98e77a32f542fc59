package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/domain"
	"employee_directory/internal/service"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit applies rule per client IP.
func (m *RateLimitMiddleware) Limit(rule domain.RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := m.rateLimitService.Allow(c.Request.Context(), rule, c.ClientIP())
		if errors.Is(err, apperrors.ErrRateLimited) {
			m.log.Warn("Rate limit exceeded", "scope", rule.Scope, "client_ip", c.ClientIP())
			c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Next()
	}
}
