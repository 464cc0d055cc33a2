// Package health provides health status aggregation for the bridge and its
// gateway endpoint.
package health

import (
	"time"

	"github.com/c360/telebridge/component"
)

// Status represents the health state of a component or the whole system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// FromComponentHealth converts a component.HealthStatus to a health.Status
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := "unhealthy"
	if ch.Healthy {
		status = "healthy"
	}

	message := "Component healthy"
	if ch.LastError != "" {
		message = ch.LastError
	}

	return Status{
		Component: name,
		Healthy:   ch.Healthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:       ch.Uptime,
			ErrorCount:   ch.ErrorCount,
			LastActivity: ch.LastCheck,
		},
	}
}

// Aggregate combines component statuses into a system status. The system is
// healthy only when every sub-status is healthy, degraded when at least one
// is unhealthy but some remain healthy, and unhealthy otherwise.
func Aggregate(name string, subs ...Status) Status {
	healthy := 0
	for _, sub := range subs {
		if sub.Healthy {
			healthy++
		}
	}

	status := "unhealthy"
	switch {
	case len(subs) > 0 && healthy == len(subs):
		status = "healthy"
	case healthy > 0:
		status = "degraded"
	}

	return Status{
		Component:   name,
		Healthy:     status == "healthy",
		Status:      status,
		Message:     "aggregate of component health",
		Timestamp:   time.Now(),
		SubStatuses: subs,
	}
}
