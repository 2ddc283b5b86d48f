// Package health provides governor liveness reporting.
package health

import "time"

// SystemStatus represents the overall health state of the governor.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full governor health report.
type Report struct {
	Status       SystemStatus `json:"status"`
	Phase        string       `json:"phase"`
	Cursor       uint64       `json:"cursor"`
	Head         uint64       `json:"head"`
	BlockLag     uint64       `json:"block_lag"`
	RunningTasks int          `json:"running_tasks"`
	LastSuccess  time.Time    `json:"last_success"`
	LastError    string       `json:"last_error,omitempty"`
}
