// Package tasks tracks long-running operations on the SQL Tools
// Service peer: it correlates task-created and status-changed
// notifications into progress surfaces and terminal outcome
// notifications, dispatching to pluggable per-operation completion
// handlers.
package tasks

// Status is the lifecycle status of a tracked task, using the peer's
// wire encoding.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusSucceeded
	StatusSucceededWithWarning
	StatusFailed
	StatusCanceled
	// StatusCanceling is an observable in-flight sub-state en route to
	// Canceled. Not terminal.
	StatusCanceling
)

// IsTerminal reports whether no further transition occurs from this
// status. Exactly Succeeded, SucceededWithWarning, Failed and
// Canceled are terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusSucceededWithWarning, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// String returns the canonical display string for the status. Inbound
// messages equal to this string (case-insensitively) carry no extra
// information and are not cached.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "Not started"
	case StatusInProgress:
		return "In progress"
	case StatusSucceeded:
		return "Succeeded"
	case StatusSucceededWithWarning:
		return "Succeeded with warning"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	case StatusCanceling:
		return "Canceling"
	default:
		return "Unknown"
	}
}

// TaskInfo is the peer's task-created payload.
type TaskInfo struct {
	TaskID        string `json:"taskId"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	OperationName string `json:"operationName,omitempty"`
	ServerName    string `json:"serverName,omitempty"`
	DatabaseName  string `json:"databaseName,omitempty"`
	// TargetLocation is resolved by completion handlers for operations
	// producing an artifact (e.g. a bacpac export path). Not always
	// populated.
	TargetLocation string `json:"targetLocation,omitempty"`
	IsCancelable   bool   `json:"isCancelable"`
	Status         Status `json:"status"`
}

// ProgressInfo is the peer's status-changed payload.
type ProgressInfo struct {
	TaskID   string  `json:"taskId"`
	Status   Status  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}
