package domain

import (
	"time"
)

// RateLimitRule is a fixed-window counter policy applied per key.
type RateLimitRule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

const (
	RateLimitScopeLogin = "login"
	RateLimitScopeSend  = "send"
)
