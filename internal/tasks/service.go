package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/notify"
)

// Canceler sends task cancellation requests to the peer. Cancellation
// is advisory: the local state machine transitions to Canceled only
// when the peer confirms via a status-changed notification.
type Canceler interface {
	CancelTask(ctx context.Context, taskID string) (bool, error)
}

// Outcome is the record of one terminal task, handed to the optional
// recorder for history persistence.
type Outcome struct {
	TaskID         string
	OperationName  string
	Name           string
	Status         Status
	Message        string
	TargetLocation string
	DatabaseName   string
	ServerName     string
	StartedAt      time.Time
	CompletedAt    time.Time
}

// OutcomeRecorder persists terminal task outcomes. Recording failures
// are logged, never propagated: history is best-effort.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

type activeTask struct {
	info        TaskInfo
	progress    *Progress
	lastMessage string
	startedAt   time.Time
}

// Service correlates peer task notifications into progress surfaces
// and terminal outcome notifications.
type Service struct {
	logger   zerolog.Logger
	notifier notify.Notifier
	peer     Canceler
	recorder OutcomeRecorder

	mu                sync.Mutex
	active            map[string]*activeTask
	handlers          map[string]CompletionHandler
	handlerOverwrites uint64
}

// NewService creates a task tracker. The recorder may be nil when no
// history persistence is configured. The peer may be nil at
// construction and bound later with SetPeer, since the peer client
// itself needs the service to dispatch notifications into.
func NewService(logger zerolog.Logger, notifier notify.Notifier, peer Canceler, recorder OutcomeRecorder) *Service {
	return &Service{
		logger:   logger.With().Str("component", "tasks").Logger(),
		notifier: notifier,
		peer:     peer,
		recorder: recorder,
		active:   make(map[string]*activeTask),
		handlers: make(map[string]CompletionHandler),
	}
}

// SetPeer binds the cancellation peer after construction.
func (s *Service) SetPeer(peer Canceler) {
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()
}

// RegisterCompletionSuccessHandler installs a handler keyed by its
// operation name. Overwriting an existing registration is allowed but
// diagnosed, so accidental double-registration stays visible.
func (s *Service) RegisterCompletionSuccessHandler(handler CompletionHandler) {
	s.mu.Lock()
	_, overwrote := s.handlers[handler.OperationName]
	s.handlers[handler.OperationName] = handler
	if overwrote {
		s.handlerOverwrites++
	}
	s.mu.Unlock()

	if overwrote {
		s.logger.Warn().
			Str("operation_name", handler.OperationName).
			Msg("Completion handler overwritten for operation")
	}
}

// HandlerOverwrites reports how many handler registrations replaced an
// existing one.
func (s *Service) HandlerOverwrites() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlerOverwrites
}

// HandleTaskCreated registers a new active task and opens its progress
// surface. The returned surface starts with a no-op report callback;
// the renderer attaches the real one.
func (s *Service) HandleTaskCreated(info TaskInfo) *Progress {
	s.mu.Lock()
	if existing, ok := s.active[info.TaskID]; ok {
		s.mu.Unlock()
		s.logger.Warn().
			Str("task_id", info.TaskID).
			Msg("Duplicate task-created notification ignored")
		return existing.progress
	}

	task := &activeTask{
		info:      info,
		progress:  newProgress(info.Status.String()),
		startedAt: time.Now(),
	}
	s.active[info.TaskID] = task
	s.mu.Unlock()

	s.logger.Info().
		Str("task_id", info.TaskID).
		Str("name", info.Name).
		Str("operation_name", info.OperationName).
		Bool("cancelable", info.IsCancelable).
		Msg("Task created")

	return task.progress
}

// HandleTaskStatusChanged applies a status-changed notification.
// Updates for unknown task ids (duplicates after terminal removal
// included) are logged and ignored.
func (s *Service) HandleTaskStatusChanged(ctx context.Context, progress ProgressInfo) {
	s.mu.Lock()
	task, ok := s.active[progress.TaskID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn().
			Str("task_id", progress.TaskID).
			Str("status", progress.Status.String()).
			Msg("Status update for unknown task")
		return
	}

	// A message that only restates the status carries nothing worth
	// caching.
	if progress.Message != "" && !strings.EqualFold(progress.Message, progress.Status.String()) {
		task.lastMessage = progress.Message
	}

	if !progress.Status.IsTerminal() {
		task.info.Status = progress.Status
		s.mu.Unlock()
		message := progress.Message
		if message == "" {
			message = progress.Status.String()
		}
		task.progress.update(message)
		return
	}

	delete(s.active, progress.TaskID)
	handler, hasHandler := s.handlers[task.info.OperationName]
	s.mu.Unlock()

	if progress.Status == StatusCanceled {
		task.progress.complete(ErrTaskCanceled)
	} else {
		task.progress.complete(nil)
	}

	s.logger.Info().
		Str("task_id", progress.TaskID).
		Str("status", progress.Status.String()).
		Msg("Task reached terminal status")

	s.notifyOutcome(task, progress.Status, handler, hasHandler)
	s.recordOutcome(ctx, task, progress.Status)
}

// notifyOutcome routes the terminal notification by severity. The
// completion handler is consulted only for exactly Succeeded: custom
// success framing must never mask failure, warning or cancel
// outcomes.
func (s *Service) notifyOutcome(task *activeTask, status Status, handler CompletionHandler, hasHandler bool) {
	generic := s.genericMessage(task, status)

	switch status {
	case StatusFailed:
		s.notifier.Error(generic)
	case StatusCanceled, StatusSucceededWithWarning:
		s.notifier.Warning(generic)
	case StatusSucceeded:
		if hasHandler && handler.Resolve != nil {
			if custom := handler.Resolve(task.info, task.lastMessage); custom != nil && custom.TargetLocation != "" {
				s.notifier.Info(custom.Message, s.buildAction(task.info, custom))
				return
			}
		}
		s.notifier.Info(generic, nil)
	}
}

func (s *Service) buildAction(info TaskInfo, custom *SuccessNotification) *notify.Action {
	if custom.Button == nil {
		return nil
	}
	if !custom.buttonValid() {
		s.logger.Warn().
			Str("task_id", info.TaskID).
			Str("operation_name", info.OperationName).
			Msg("Completion handler supplied a partial action button, dropping it")
		return nil
	}
	return &notify.Action{
		Label:   custom.Button.Label,
		Command: custom.Button.Command,
		Args:    custom.Button.BuildArgs(info),
	}
}

func (s *Service) genericMessage(task *activeTask, status Status) string {
	if task.lastMessage != "" {
		return fmt.Sprintf("%s: %s", task.info.Name, task.lastMessage)
	}
	return fmt.Sprintf("%s %s", task.info.Name, strings.ToLower(status.String()))
}

func (s *Service) recordOutcome(ctx context.Context, task *activeTask, status Status) {
	if s.recorder == nil {
		return
	}
	outcome := Outcome{
		TaskID:         task.info.TaskID,
		OperationName:  task.info.OperationName,
		Name:           task.info.Name,
		Status:         status,
		Message:        task.lastMessage,
		TargetLocation: task.info.TargetLocation,
		DatabaseName:   task.info.DatabaseName,
		ServerName:     task.info.ServerName,
		StartedAt:      task.startedAt,
		CompletedAt:    time.Now(),
	}
	if err := s.recorder.RecordOutcome(ctx, outcome); err != nil {
		s.logger.Error().Err(err).
			Str("task_id", task.info.TaskID).
			Msg("Failed to record task outcome")
	}
}

// CancelTask forwards a user-initiated cancellation to the peer. The
// task stays active until the peer confirms the transition.
func (s *Service) CancelTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	task, ok := s.active[taskID]
	peer := s.peer
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	if !task.info.IsCancelable {
		return fmt.Errorf("task is not cancelable: %s", taskID)
	}
	if peer == nil {
		return fmt.Errorf("no peer connection for cancellation")
	}

	acked, err := peer.CancelTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}
	if !acked {
		s.logger.Warn().Str("task_id", taskID).Msg("Peer declined cancellation request")
	}
	return nil
}

// ActiveTasks returns a snapshot of the in-flight tasks with their
// current progress messages.
func (s *Service) ActiveTasks() []ActiveTaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ActiveTaskInfo, 0, len(s.active))
	for _, task := range s.active {
		out = append(out, ActiveTaskInfo{
			TaskInfo:  task.info,
			Message:   task.progress.Message(),
			StartedAt: task.startedAt,
		})
	}
	return out
}

// ActiveTaskInfo is a snapshot of one in-flight task.
type ActiveTaskInfo struct {
	TaskInfo
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}
