// Package health aggregates readiness of the components an answer depends
// on: the passage store and the completion provider.
package health

import "context"

// DBPinger checks passage store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// LLMChecker checks completion provider availability.
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}
