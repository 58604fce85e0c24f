// Package mcp exposes remora's profiler and task state as MCP tools
// for chat/automation callers. Tool results are JSON strings.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/history"
	"github.com/remora-db/remora/internal/profiler"
	"github.com/remora-db/remora/internal/tasks"
	"github.com/remora-db/remora/pkg/version"
)

// SessionController forwards profiler session control to the tools
// service peer. Implemented by toolsservice.Client.
type SessionController interface {
	StartSession(ctx context.Context, ownerURI, sessionName, templateName string) error
	StopSession(ctx context.Context, sessionID string) error
	PauseSession(ctx context.Context, sessionID string) error
}

// Config contains configuration for the MCP server.
type Config struct {
	// ServerName is the advertised MCP server name.
	ServerName string

	// EnabledTools optionally restricts which tools are available.
	// If empty, all tools are enabled.
	EnabledTools []string
}

// Server wraps the MCP server and provides remora-specific tools.
type Server struct {
	mcpServer  *server.MCPServer
	sessions   *profiler.SessionManager
	tasksSvc   *tasks.Service
	history    *history.Store
	controller SessionController
	config     Config
	logger     zerolog.Logger
}

// New creates an MCP server over the given state. The history store
// and controller may be nil; the affected tools then report
// unavailability.
func New(sessions *profiler.SessionManager, tasksSvc *tasks.Service, historyStore *history.Store, controller SessionController, config Config, logger zerolog.Logger) *Server {
	if config.ServerName == "" {
		config.ServerName = "remora"
	}

	s := &Server{
		mcpServer: server.NewMCPServer(
			config.ServerName,
			version.Version,
			server.WithToolCapabilities(true),
		),
		sessions:   sessions,
		tasksSvc:   tasksSvc,
		history:    historyStore,
		controller: controller,
		config:     config,
		logger:     logger.With().Str("component", "mcp").Logger(),
	}

	s.registerProfilerTools()
	s.registerTaskTools()

	s.logger.Info().
		Str("server_name", config.ServerName).
		Msg("MCP server initialized")

	return s
}

// ServeStdio serves the MCP protocol over stdio. Blocks until the
// transport closes.
func (s *Server) ServeStdio() error {
	s.logger.Info().Msg("Starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// isToolEnabled checks if a tool is in the enabled list (empty list =
// all enabled).
func (s *Server) isToolEnabled(name string) bool {
	if len(s.config.EnabledTools) == 0 {
		return true
	}
	for _, enabled := range s.config.EnabledTools {
		if enabled == name {
			return true
		}
	}
	return false
}

// generateInputSchema generates a JSON schema from a Go type.
func generateInputSchema(inputType interface{}) (map[string]any, error) {
	// Inline all schemas instead of using $ref/$defs so LLM clients
	// get a self-contained schema.
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputType)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	// MCP clients expect a plain object schema without draft headers.
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	return schemaMap, nil
}

// registerToolWithSchema generates the input schema, creates the tool,
// and registers its handler.
func (s *Server) registerToolWithSchema(
	name string,
	description string,
	inputType interface{},
	handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error),
) {
	if !s.isToolEnabled(name) {
		return
	}

	inputSchema, err := generateInputSchema(inputType)
	if err != nil {
		s.logger.Error().Err(err).Str("tool", name).Msg("Failed to generate input schema")
		return
	}

	schemaBytes, err := json.Marshal(inputSchema)
	if err != nil {
		s.logger.Error().Err(err).Str("tool", name).Msg("Failed to marshal schema")
		return
	}

	tool := mcp.NewToolWithRawSchema(name, description, schemaBytes)
	s.mcpServer.AddTool(tool, handler)

	s.logger.Debug().Str("tool", name).Msg("Tool registered")
}

// decodeArguments parses a tool request's arguments into the input
// type. Malformed payloads are soft failures: the caller converts the
// error into a {success:false, message} result.
func decodeArguments(request mcp.CallToolRequest, out any) error {
	if request.Params.Arguments == nil {
		return nil
	}
	argBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(argBytes, out); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}

// jsonResult marshals a tool result value into a text result.
func (s *Server) jsonResult(toolName string, value any) *mcp.CallToolResult {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("tool", toolName).Msg("Failed to marshal tool result")
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// failureResult produces the uniform {success:false, message} payload.
func (s *Server) failureResult(toolName string, err error) *mcp.CallToolResult {
	return s.jsonResult(toolName, errorResult{Success: false, Message: err.Error()})
}
