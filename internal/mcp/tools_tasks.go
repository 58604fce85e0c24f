package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/remora-db/remora/internal/history"
)

// taskSummary is one in-flight task in the list-tasks result.
type taskSummary struct {
	TaskID        string `json:"taskId"`
	Name          string `json:"name"`
	OperationName string `json:"operationName,omitempty"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	DatabaseName  string `json:"databaseName,omitempty"`
	ServerName    string `json:"serverName,omitempty"`
	IsCancelable  bool   `json:"isCancelable"`
	StartedAt     string `json:"startedAt"`
}

type listTasksResult struct {
	Success bool          `json:"success"`
	Tasks   []taskSummary `json:"tasks"`
	Message string        `json:"message,omitempty"`
}

type taskHistoryResult struct {
	Success bool            `json:"success"`
	Entries []history.Entry `json:"entries"`
	Message string          `json:"message,omitempty"`
}

// registerTaskTools registers the task tracking tools.
func (s *Server) registerTaskTools() {
	s.registerToolWithSchema(
		"remora_list_tasks",
		"List in-flight long-running tasks (deploy, export, import) with their latest progress messages.",
		ListTasksInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.executeListTasks(), nil
		},
	)

	s.registerToolWithSchema(
		"remora_cancel_task",
		"Request cancellation of an in-flight task. Cancellation is advisory: the task stays active until the peer confirms the transition.",
		CancelTaskInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input CancelTaskInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_cancel_task", err), nil
			}
			return s.executeCancelTask(ctx, input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_task_history",
		"List recently completed tasks and their outcomes, newest first.",
		TaskHistoryInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input TaskHistoryInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_task_history", err), nil
			}
			return s.executeTaskHistory(ctx, input), nil
		},
	)
}

func (s *Server) executeListTasks() *mcp.CallToolResult {
	active := s.tasksSvc.ActiveTasks()

	result := listTasksResult{
		Success: true,
		Tasks:   make([]taskSummary, 0, len(active)),
	}
	for _, task := range active {
		result.Tasks = append(result.Tasks, taskSummary{
			TaskID:        task.TaskID,
			Name:          task.Name,
			OperationName: task.OperationName,
			Status:        task.Status.String(),
			Message:       task.Message,
			DatabaseName:  task.DatabaseName,
			ServerName:    task.ServerName,
			IsCancelable:  task.IsCancelable,
			StartedAt:     task.StartedAt.Format(time.RFC3339),
		})
	}
	if len(result.Tasks) == 0 {
		result.Message = "no active tasks"
	}

	return s.jsonResult("remora_list_tasks", result)
}

func (s *Server) executeCancelTask(ctx context.Context, input CancelTaskInput) *mcp.CallToolResult {
	const toolName = "remora_cancel_task"
	if input.TaskID == "" {
		return s.jsonResult(toolName, controlResult{Message: "taskId is required"})
	}
	if err := s.tasksSvc.CancelTask(ctx, input.TaskID); err != nil {
		return s.failureResult(toolName, err)
	}
	return s.jsonResult(toolName, controlResult{Success: true, Message: "cancellation requested"})
}

func (s *Server) executeTaskHistory(ctx context.Context, input TaskHistoryInput) *mcp.CallToolResult {
	if s.history == nil {
		return s.failureResult("remora_task_history", errors.New("task history is not configured"))
	}

	limit := 0
	if input.Limit != nil {
		limit = *input.Limit
	}

	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return s.failureResult("remora_task_history", err)
	}

	result := taskHistoryResult{Success: true, Entries: entries}
	if len(entries) == 0 {
		result.Message = "no completed tasks recorded"
	}
	return s.jsonResult("remora_task_history", result)
}
