package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"employee_directory/pkg/logger"
)

type Repositories struct {
	Employee  EmployeeRepository
	Group     GroupRepository
	Message   MessageRepository
	Audit     AuditRepository
	RateLimit RateLimitRepository
}

// NewRepositories wires the Postgres repositories. redis may be nil.
func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		Employee:  NewEmployeeRepository(db, log),
		Group:     NewGroupRepository(db, log),
		Message:   NewMessageRepository(db, log),
		Audit:     NewAuditRepository(db, log),
		RateLimit: NewRateLimitRepository(redis, log),
	}
}
