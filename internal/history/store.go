// Package history persists terminal task outcomes to an embedded
// DuckDB database, backing the task-history surface.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// DuckDB driver registration.
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/constants"
	"github.com/remora-db/remora/internal/tasks"
)

// Store handles local storage of terminal task outcomes. In-memory
// profiler buffers are never persisted; history covers tasks only.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewStore creates a task-history store on the given database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "task_history").Logger(),
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the task history table.
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS task_history (
			task_id         TEXT NOT NULL,
			operation_name  TEXT,
			name            TEXT NOT NULL,
			status          TEXT NOT NULL,
			message         TEXT,
			target_location TEXT,
			database_name   TEXT,
			server_name     TEXT,
			started_at      TIMESTAMP NOT NULL,
			completed_at    TIMESTAMP NOT NULL,
			PRIMARY KEY (task_id)
		);

		-- Index for recency queries.
		CREATE INDEX IF NOT EXISTS idx_task_history_completed
		ON task_history(completed_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info().Msg("Task history schema initialized")
	return nil
}

// RecordOutcome stores one terminal task outcome. Implements
// tasks.OutcomeRecorder.
func (s *Store) RecordOutcome(ctx context.Context, outcome tasks.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO task_history (
			task_id, operation_name, name, status, message,
			target_location, database_name, server_name,
			started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO NOTHING
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		outcome.TaskID,
		outcome.OperationName,
		outcome.Name,
		outcome.Status.String(),
		outcome.Message,
		outcome.TargetLocation,
		outcome.DatabaseName,
		outcome.ServerName,
		outcome.StartedAt,
		outcome.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store task outcome: %w", err)
	}

	return nil
}

// Entry is one persisted task outcome.
type Entry struct {
	TaskID         string    `json:"taskId"`
	OperationName  string    `json:"operationName,omitempty"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	TargetLocation string    `json:"targetLocation,omitempty"`
	DatabaseName   string    `json:"databaseName,omitempty"`
	ServerName     string    `json:"serverName,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT task_id, operation_name, name, status, message,
		       target_location, database_name, server_name,
		       started_at, completed_at
		FROM task_history
		ORDER BY completed_at DESC
		LIMIT ?
	`

	queryCtx, cancel := context.WithTimeout(ctx, constants.DefaultQueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0)

	for rows.Next() {
		var entry Entry
		var operationName, message, targetLocation, databaseName, serverName sql.NullString

		err := rows.Scan(
			&entry.TaskID,
			&operationName,
			&entry.Name,
			&entry.Status,
			&message,
			&targetLocation,
			&databaseName,
			&serverName,
			&entry.StartedAt,
			&entry.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task history row: %w", err)
		}

		entry.OperationName = operationName.String
		entry.Message = message.String
		entry.TargetLocation = targetLocation.String
		entry.DatabaseName = databaseName.String
		entry.ServerName = serverName.String

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task history: %w", err)
	}

	return entries, nil
}

// CleanupOldEntries removes outcomes older than the retention period.
func (s *Store) CleanupOldEntries(ctx context.Context, retentionPeriod time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retentionPeriod)

	execCtx, cancel := context.WithTimeout(ctx, constants.DefaultQueryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(execCtx, `DELETE FROM task_history WHERE completed_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup task history: %w", err)
	}

	rowsDeleted, _ := result.RowsAffected()
	if rowsDeleted > 0 {
		s.logger.Debug().
			Int64("rows_deleted", rowsDeleted).
			Time("cutoff", cutoff).
			Msg("Cleaned up old task history entries")
	}

	return nil
}

// RunCleanupLoop prunes old entries on an interval until the context
// is cancelled.
func (s *Store) RunCleanupLoop(ctx context.Context, interval, retentionPeriod time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("retention_period", retentionPeriod).
		Msg("Starting task history cleanup loop")

	for {
		select {
		case <-ticker.C:
			if err := s.CleanupOldEntries(ctx, retentionPeriod); err != nil {
				s.logger.Error().Err(err).Msg("Failed to cleanup task history")
			}

		case <-ctx.Done():
			s.logger.Info().Msg("Stopping task history cleanup loop")
			return
		}
	}
}
