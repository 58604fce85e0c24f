package mcp

import (
	"github.com/remora-db/remora/internal/profiler"
)

// Input types for MCP tools.
// Optional fields use pointers to allow nil values.

// ListSessionsInput is the input for remora_list_profiler_sessions.
type ListSessionsInput struct{}

// QueryEventsInput is the input for remora_query_profiler_events.
type QueryEventsInput struct {
	SessionID string                  `json:"sessionId" jsonschema:"description=Profiler session id (required)"`
	Filters   []profiler.FilterClause `json:"filters,omitempty" jsonschema:"description=Optional filter clauses combined with AND. Each clause is {field operator value}. Operators: Equals NotEquals Contains GreaterThan LessThan GreaterThanOrEqual LessThanOrEqual"`
	Limit     *int                    `json:"limit,omitempty" jsonschema:"description=Maximum events to return,default=50,maximum=200"`
	SortBy    *string                 `json:"sortBy,omitempty" jsonschema:"description=Sort key,enum=timestamp,enum=duration,default=duration"`
	SortOrder *string                 `json:"sortOrder,omitempty" jsonschema:"description=Sort direction,enum=asc,enum=desc,default=desc"`
}

// GetEventInput is the input for remora_get_profiler_event.
type GetEventInput struct {
	SessionID string `json:"sessionId" jsonschema:"description=Profiler session id (required)"`
	EventID   int64  `json:"eventId" jsonschema:"description=Event id from a previous query (required)"`
}

// StartSessionInput is the input for remora_start_profiler_session.
type StartSessionInput struct {
	OwnerURI     string `json:"ownerUri" jsonschema:"description=Connection owner URI to trace (required)"`
	SessionName  string `json:"sessionName,omitempty" jsonschema:"description=Optional session name; generated when empty"`
	TemplateName string `json:"templateName,omitempty" jsonschema:"description=Trace template name,default=Standard_OnPrem"`
}

// StopSessionInput is the input for remora_stop_profiler_session.
type StopSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"description=Profiler session id (required)"`
}

// PauseSessionInput is the input for remora_pause_profiler_session.
type PauseSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"description=Profiler session id (required)"`
}

// CloseSessionInput is the input for remora_close_profiler_session.
type CloseSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"description=Profiler session id (required)"`
}

// ListTasksInput is the input for remora_list_tasks.
type ListTasksInput struct{}

// CancelTaskInput is the input for remora_cancel_task.
type CancelTaskInput struct {
	TaskID string `json:"taskId" jsonschema:"description=Task id from remora_list_tasks (required)"`
}

// TaskHistoryInput is the input for remora_task_history.
type TaskHistoryInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"description=Maximum history entries to return,default=50"`
}

// SessionSummary is one session in the list-sessions result.
type SessionSummary struct {
	SessionID       string `json:"sessionId"`
	SessionName     string `json:"sessionName"`
	State           string `json:"state"`
	TemplateName    string `json:"templateName"`
	ConnectionLabel string `json:"connectionLabel"`
	EventCount      uint64 `json:"eventCount"`
	BufferCapacity  int    `json:"bufferCapacity"`
	CreatedAt       string `json:"createdAt"`
}

// ListSessionsResult is the JSON output of remora_list_profiler_sessions.
type ListSessionsResult struct {
	Success  bool             `json:"success"`
	Sessions []SessionSummary `json:"sessions"`
	Message  string           `json:"message,omitempty"`
}

// controlResult is the JSON output of the session control tools.
type controlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// errorResult is the uniform failure payload for malformed input.
type errorResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
