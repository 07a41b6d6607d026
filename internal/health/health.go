// Package health provides per-job health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a job.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// JobHealth contains the health of one scheduled job.
type JobHealth struct {
	Job         string       `json:"job"`
	Status      SystemStatus `json:"status"`
	LastOutcome string       `json:"last_outcome,omitempty"`
	LastMessage string       `json:"last_message,omitempty"`
	LastRun     *time.Time   `json:"last_run,omitempty"`
	Cursor      uint64       `json:"cursor"`
	QueueSize   int          `json:"queue_size"`
	Runs        int          `json:"runs"`
	Failures    int          `json:"failures"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus         `json:"system_status"`
	Jobs         map[string]JobHealth `json:"jobs"`
}
