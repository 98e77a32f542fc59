package service

import (
	"context"

	"employee_directory/internal/domain"
	"employee_directory/internal/metrics"
	"employee_directory/internal/repository"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type RateLimitService interface {
	// Allow counts one request for key under rule and returns ErrRateLimited
	// once the window is used up. Counter failures let the request through.
	Allow(ctx context.Context, rule domain.RateLimitRule, key string) error
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	metrics       *metrics.Metrics
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, m *metrics.Metrics, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		metrics:       m,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, rule domain.RateLimitRule, key string) error {
	if rule.Limit <= 0 {
		return nil
	}

	count, err := s.rateLimitRepo.Hit(ctx, rule.Scope+":"+key, rule.Window)
	if err != nil {
		s.log.Warn("Rate limit check failed, allowing request", "scope", rule.Scope, "error", err)
		return nil
	}
	if count > int64(rule.Limit) {
		if s.metrics != nil {
			s.metrics.RateLimited.WithLabelValues(rule.Scope).Inc()
		}
		return apperrors.ErrRateLimited
	}
	return nil
}
