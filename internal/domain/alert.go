package domain

import "time"

// AlertSeverity ranks operator alerts.
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is raised when the ledger needs operator attention.
type Alert struct {
	OccurredAt time.Time     `json:"occurred_at"`
	Severity   AlertSeverity `json:"severity"`
	Title      string        `json:"title"`
	EventID    string        `json:"event_id,omitempty"`
	Reason     string        `json:"reason"`
}
