// Package cli provides the remora command-line commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/remora-db/remora/internal/config"
	"github.com/remora-db/remora/internal/constants"
	"github.com/remora-db/remora/internal/history"
	"github.com/remora-db/remora/internal/logging"
	mcpserver "github.com/remora-db/remora/internal/mcp"
	"github.com/remora-db/remora/internal/notify"
	"github.com/remora-db/remora/internal/profiler"
	"github.com/remora-db/remora/internal/tasks"
	"github.com/remora-db/remora/internal/toolsservice"
)

// NewServeCmd creates the serve command. It connects to the SQL Tools
// Service peer, tracks profiler sessions and long-running tasks, and
// exposes them over MCP stdio.
func NewServeCmd() *cobra.Command {
	var flags ServeFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve profiler sessions and task tracking over MCP stdio",
		Long: `Connect to a SQL Tools Service peer and serve its profiler
sessions and long-running task state to MCP clients over stdio.

Trace events stream in over the peer's websocket notifications and are
held in bounded per-session ring buffers. Terminal task outcomes are
persisted to an embedded DuckDB history database.

Environment Variables:
  REMORA_LOG_LEVEL               - Log level (debug, info, warn, error)
  REMORA_TOOLS_SERVICE_ENDPOINT  - Websocket URL of the peer
  REMORA_HISTORY_PATH            - Task history database file
  REMORA_MCP_SERVER_NAME         - MCP server name advertised to clients`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(&flags)
		},
	}

	flags.AddFlags(cmd.Flags())

	return cmd
}

func runServe(flags *ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := flags.Apply(cfg); err != nil {
		return fmt.Errorf("invalid flag overrides: %w", err)
	}

	// Stdout carries the MCP stdio protocol; all logging stays on
	// stderr.
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Pretty = cfg.Logging.Pretty
	logger := logging.New(logCfg)

	logger.Info().
		Str("endpoint", cfg.ToolsService.Endpoint).
		Int("buffer_capacity", cfg.Profiler.BufferCapacity).
		Bool("history", cfg.History.Enabled).
		Msg("Starting remora")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := profiler.NewSessionManager(logger)
	sessions.SetDefaultBufferCapacity(cfg.Profiler.BufferCapacity)
	notifier := notify.NewLogNotifier(logger)

	var recorder tasks.OutcomeRecorder
	var store *history.Store
	if cfg.History.Enabled {
		dbPath := cfg.HistoryDBPath()
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
		db, err := sql.Open("duckdb", dbPath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer func() { _ = db.Close() }()

		store, err = history.NewStore(db, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize history store: %w", err)
		}
		recorder = store

		go store.RunCleanupLoop(ctx, cfg.History.CleanupInterval, cfg.History.Retention)
	}

	tasksSvc := tasks.NewService(logger, notifier, nil, recorder)
	registerCompletionHandlers(tasksSvc)

	peer, err := toolsservice.Dial(ctx, cfg.ToolsService.Endpoint, sessions, tasksSvc, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to tools service at %s: %w", cfg.ToolsService.Endpoint, err)
	}
	peer.SetRequestTimeout(cfg.ToolsService.RequestTimeout)
	tasksSvc.SetPeer(peer)

	peerDone := make(chan error, 1)
	go func() {
		peerDone <- peer.Run(ctx)
	}()

	mcpSrv := mcpserver.New(sessions, tasksSvc, store, peer, mcpserver.Config{
		ServerName:   cfg.MCP.ServerName,
		EnabledTools: cfg.MCP.EnabledTools,
	}, logger)

	mcpDone := make(chan error, 1)
	go func() {
		mcpDone <- mcpSrv.ServeStdio()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	peerExited := false
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-peerDone:
		peerExited = true
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("tools service connection lost: %w", err)
		}
	case err := <-mcpDone:
		if err != nil {
			return fmt.Errorf("mcp server exited: %w", err)
		}
		logger.Info().Msg("MCP client disconnected")
	}

	cancel()

	// Give the peer read loop a bounded window to observe the closed
	// connection before exiting.
	if !peerExited {
		select {
		case <-peerDone:
		case <-time.After(constants.DefaultShutdownTimeout):
			logger.Warn().Msg("Peer connection did not drain before shutdown timeout")
		}
	}
	return nil
}

// registerCompletionHandlers installs the success handlers for
// operations that produce an artifact the user can jump to, matching
// the export and deploy flows of the tools service.
func registerCompletionHandlers(svc *tasks.Service) {
	openLocation := tasks.ActionButton{
		Label:   "Open location",
		Command: "remora.openLocation",
		BuildArgs: func(info tasks.TaskInfo) []string {
			return []string{info.TargetLocation}
		},
	}

	for _, op := range []string{"ExportBacpac", "ExtractDacpac", "GenerateDeployScript"} {
		svc.RegisterCompletionSuccessHandler(tasks.CompletionHandler{
			OperationName: op,
			Resolve: func(info tasks.TaskInfo, lastMessage string) *tasks.SuccessNotification {
				if info.TargetLocation == "" {
					return nil
				}
				return &tasks.SuccessNotification{
					Message:        fmt.Sprintf("%s completed: %s", info.Name, info.TargetLocation),
					TargetLocation: info.TargetLocation,
					Button:         &openLocation,
				}
			},
		})
	}
}
