package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/remora-db/remora/internal/profiler"
)

// errNoPeer is returned by session control tools when no tools
// service connection was configured.
var errNoPeer = errors.New("no tools service connection configured")

// registerProfilerTools registers the profiler session and event
// query tools.
func (s *Server) registerProfilerTools() {
	s.registerToolWithSchema(
		"remora_list_profiler_sessions",
		"List active SQL Server profiler sessions with their state, template and event counts.",
		ListSessionsInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.executeListSessions(), nil
		},
	)

	s.registerToolWithSchema(
		"remora_query_profiler_events",
		"Query captured trace events from a profiler session with filters, sorting and a result limit. Event text is truncated for summaries; use remora_get_profiler_event for full text.",
		QueryEventsInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input QueryEventsInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_query_profiler_events", err), nil
			}
			return s.executeQueryEvents(input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_get_profiler_event",
		"Get one captured trace event by id with the full detail text budget.",
		GetEventInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input GetEventInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_get_profiler_event", err), nil
			}
			return s.executeGetEvent(input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_start_profiler_session",
		"Ask the SQL Tools Service to start a new profiler trace session on a connection. The session appears in remora_list_profiler_sessions once the peer confirms creation.",
		StartSessionInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input StartSessionInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_start_profiler_session", err), nil
			}
			return s.executeStartSession(ctx, input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_stop_profiler_session",
		"Ask the SQL Tools Service to stop a profiler trace session. The session stays listed with its captured events until closed.",
		StopSessionInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input StopSessionInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_stop_profiler_session", err), nil
			}
			return s.executeStopSession(ctx, input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_close_profiler_session",
		"Close a profiler trace session locally and discard its captured events. Does not contact the peer; stop the session first if it is still running.",
		CloseSessionInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input CloseSessionInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_close_profiler_session", err), nil
			}
			return s.executeCloseSession(input), nil
		},
	)

	s.registerToolWithSchema(
		"remora_pause_profiler_session",
		"Ask the SQL Tools Service to pause or resume event flow for a profiler trace session.",
		PauseSessionInput{},
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var input PauseSessionInput
			if err := decodeArguments(request, &input); err != nil {
				return s.failureResult("remora_pause_profiler_session", err), nil
			}
			return s.executePauseSession(ctx, input), nil
		},
	)
}

func (s *Server) executeListSessions() *mcp.CallToolResult {
	sessions := s.sessions.Sessions()

	result := ListSessionsResult{
		Success:  true,
		Sessions: make([]SessionSummary, 0, len(sessions)),
	}
	for _, session := range sessions {
		result.Sessions = append(result.Sessions, SessionSummary{
			SessionID:       session.ID,
			SessionName:     session.Name,
			State:           session.State().String(),
			TemplateName:    session.TemplateName,
			ConnectionLabel: session.OwnerURI,
			EventCount:      session.EventCount(),
			BufferCapacity:  session.BufferCapacity(),
			CreatedAt:       session.CreatedAt.Format(time.RFC3339),
		})
	}
	if len(result.Sessions) == 0 {
		result.Message = "no profiler sessions"
	}

	return s.jsonResult("remora_list_profiler_sessions", result)
}

func (s *Server) executeQueryEvents(input QueryEventsInput) *mcp.CallToolResult {
	req := profiler.QueryRequest{
		SessionID: input.SessionID,
		Filters:   input.Filters,
		Limit:     input.Limit,
	}
	if input.SortBy != nil {
		req.SortBy = *input.SortBy
	}
	if input.SortOrder != nil {
		req.SortOrder = *input.SortOrder
	}

	return s.jsonResult("remora_query_profiler_events", s.sessions.QueryEvents(req))
}

func (s *Server) executeGetEvent(input GetEventInput) *mcp.CallToolResult {
	return s.jsonResult("remora_get_profiler_event", s.sessions.EventDetail(input.SessionID, input.EventID))
}

func (s *Server) executeCloseSession(input CloseSessionInput) *mcp.CallToolResult {
	const toolName = "remora_close_profiler_session"
	if input.SessionID == "" {
		return s.jsonResult(toolName, controlResult{Message: "sessionId is required"})
	}
	if !s.sessions.RemoveSession(input.SessionID) {
		return s.jsonResult(toolName, controlResult{Message: "session not found"})
	}
	return s.jsonResult(toolName, controlResult{Success: true, Message: "session closed"})
}

func (s *Server) executeStartSession(ctx context.Context, input StartSessionInput) *mcp.CallToolResult {
	const toolName = "remora_start_profiler_session"
	if s.controller == nil {
		return s.failureResult(toolName, errNoPeer)
	}
	if input.OwnerURI == "" {
		return s.jsonResult(toolName, controlResult{Message: "ownerUri is required"})
	}
	if err := s.controller.StartSession(ctx, input.OwnerURI, input.SessionName, input.TemplateName); err != nil {
		return s.failureResult(toolName, err)
	}
	return s.jsonResult(toolName, controlResult{Success: true, Message: "session start requested"})
}

func (s *Server) executeStopSession(ctx context.Context, input StopSessionInput) *mcp.CallToolResult {
	const toolName = "remora_stop_profiler_session"
	if s.controller == nil {
		return s.failureResult(toolName, errNoPeer)
	}
	if input.SessionID == "" {
		return s.jsonResult(toolName, controlResult{Message: "sessionId is required"})
	}
	if err := s.controller.StopSession(ctx, input.SessionID); err != nil {
		return s.failureResult(toolName, err)
	}
	return s.jsonResult(toolName, controlResult{Success: true, Message: "session stop requested"})
}

func (s *Server) executePauseSession(ctx context.Context, input PauseSessionInput) *mcp.CallToolResult {
	const toolName = "remora_pause_profiler_session"
	if s.controller == nil {
		return s.failureResult(toolName, errNoPeer)
	}
	if input.SessionID == "" {
		return s.jsonResult(toolName, controlResult{Message: "sessionId is required"})
	}
	if err := s.controller.PauseSession(ctx, input.SessionID); err != nil {
		return s.failureResult(toolName, err)
	}
	return s.jsonResult(toolName, controlResult{Success: true, Message: "session pause toggled"})
}
