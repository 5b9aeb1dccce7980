package tenant

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ctx scopes one execution request to an environment and tenant.
type Ctx struct {
	// Env is the deployment environment id.
	Env string `json:"env"`
	// Tenant is the tenant id.
	Tenant string `json:"tenant"`
	// Team is an optional team id.
	Team string `json:"team,omitempty"`
	// User is an optional user id.
	User string `json:"user,omitempty"`
	// TraceID links the request to a distributed trace.
	TraceID string `json:"trace_id,omitempty"`
	// CorrelationID links related executions.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Deadline bounds the total retry budget when set.
	Deadline *time.Time `json:"deadline,omitempty"`
	// Attempt is the zero-based attempt counter.
	Attempt int `json:"attempt"`
	// IdempotencyKey lets tools recognise repeated requests.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// New returns a tenant context with fresh trace and correlation ids.
func New(env, tenantID string) Ctx {
	return Ctx{
		Env:           env,
		Tenant:        tenantID,
		TraceID:       uuid.NewString(),
		CorrelationID: uuid.NewString(),
	}
}

// WithDefaults fills missing trace and correlation ids.
func (c Ctx) WithDefaults() Ctx {
	if strings.TrimSpace(c.TraceID) == "" {
		c.TraceID = uuid.NewString()
	}
	if strings.TrimSpace(c.CorrelationID) == "" {
		c.CorrelationID = c.TraceID
	}
	return c
}

// NextAttempt returns a copy with the attempt counter incremented.
func (c Ctx) NextAttempt() Ctx {
	c.Attempt++
	return c
}

// Expired reports whether the deadline has passed at now.
func (c Ctx) Expired(now time.Time) bool {
	return c.Deadline != nil && !now.Before(*c.Deadline)
}

// Remaining returns the time left before the deadline and whether one is set.
func (c Ctx) Remaining(now time.Time) (time.Duration, bool) {
	if c.Deadline == nil {
		return 0, false
	}
	return c.Deadline.Sub(now), true
}
