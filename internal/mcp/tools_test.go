package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/notify"
	"github.com/remora-db/remora/internal/profiler"
	"github.com/remora-db/remora/internal/tasks"
)

func int64p(v int64) *int64 { return &v }

func newTestServer(t *testing.T) (*Server, *profiler.SessionManager, *tasks.Service) {
	t.Helper()
	sessions := profiler.NewSessionManager(zerolog.Nop())
	tasksSvc := tasks.NewService(zerolog.Nop(), notify.NewLogNotifier(zerolog.Nop()), nil, nil)
	srv := New(sessions, tasksSvc, nil, nil, Config{}, zerolog.Nop())
	return srv, sessions, tasksSvc
}

// resultText extracts the JSON text payload of a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("tool result content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestListSessionsTool(t *testing.T) {
	srv, sessions, _ := newTestServer(t)

	session, err := sessions.RegisterSession(profiler.SessionDescriptor{
		ID:             "sess-1",
		Name:           "trace 1",
		TemplateName:   "Standard_OnPrem",
		OwnerURI:       "mssql://localhost/master",
		State:          profiler.StateRunning,
		BufferCapacity: 100,
	})
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	session.Ingest(profiler.EventRow{EventClass: "SQL:BatchCompleted"})

	var result ListSessionsResult
	if err := json.Unmarshal([]byte(resultText(t, srv.executeListSessions())), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if !result.Success {
		t.Fatalf("success = false: %s", result.Message)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(result.Sessions))
	}
	got := result.Sessions[0]
	if got.SessionID != "sess-1" || got.State != "running" || got.EventCount != 1 || got.BufferCapacity != 100 {
		t.Errorf("session summary = %+v", got)
	}
	if got.ConnectionLabel != "mssql://localhost/master" {
		t.Errorf("ConnectionLabel = %q", got.ConnectionLabel)
	}
}

func TestListSessionsTool_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var result ListSessionsResult
	if err := json.Unmarshal([]byte(resultText(t, srv.executeListSessions())), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if !result.Success {
		t.Error("listing zero sessions is still a success")
	}
	if result.Message == "" {
		t.Error("expected message for the empty session list")
	}
	if result.Sessions == nil {
		t.Error("sessions must serialize as an empty array, not null")
	}
}

func TestQueryEventsTool(t *testing.T) {
	srv, sessions, _ := newTestServer(t)

	if _, err := sessions.RegisterSession(profiler.SessionDescriptor{ID: "sess-1", BufferCapacity: 10}); err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	for _, d := range []int64{10, 5, 20} {
		sessions.IngestEvent("sess-1", profiler.EventRow{Duration: int64p(d)})
	}

	var result profiler.QueryResult
	text := resultText(t, srv.executeQueryEvents(QueryEventsInput{SessionID: "sess-1"}))
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if !result.Success {
		t.Fatalf("success = false: %s", result.Message)
	}
	// Defaults applied through the tool layer: duration desc.
	want := []int64{20, 10, 5}
	for i, ev := range result.Events {
		if *ev.Duration != want[i] {
			t.Errorf("events[%d].Duration = %d, want %d", i, *ev.Duration, want[i])
		}
	}
	if result.Metadata.TextTruncationLimit != 512 {
		t.Errorf("TextTruncationLimit = %d, want 512", result.Metadata.TextTruncationLimit)
	}
}

func TestQueryEventsTool_UnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var result profiler.QueryResult
	text := resultText(t, srv.executeQueryEvents(QueryEventsInput{SessionID: "missing"}))
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if result.Success {
		t.Error("success = true for unknown session")
	}
	if result.Message != "session not found" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestQueryEventsTool_MalformedArguments(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// Find the registered handler path by simulating a bad payload
	// through decodeArguments.
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]any{"limit": "not a number"}

	var input QueryEventsInput
	err := decodeArguments(request, &input)
	if err == nil {
		t.Fatal("expected decode error for malformed arguments")
	}

	var failure errorResult
	text := resultText(t, srv.failureResult("remora_query_profiler_events", err))
	if jsonErr := json.Unmarshal([]byte(text), &failure); jsonErr != nil {
		t.Fatalf("failure result is not valid JSON: %v", jsonErr)
	}
	if failure.Success {
		t.Error("failure result has success = true")
	}
	if failure.Message == "" {
		t.Error("failure result has no message")
	}
}

func TestGetEventTool(t *testing.T) {
	srv, sessions, _ := newTestServer(t)

	if _, err := sessions.RegisterSession(profiler.SessionDescriptor{ID: "sess-1", BufferCapacity: 10}); err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	sessions.IngestEvent("sess-1", profiler.EventRow{TextData: "SELECT 1", EventClass: "SQL:BatchCompleted"})

	var result profiler.DetailResult
	text := resultText(t, srv.executeGetEvent(GetEventInput{SessionID: "sess-1", EventID: 1}))
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if !result.Success || result.Event == nil {
		t.Fatalf("detail lookup failed: %+v", result)
	}
	if result.Event.TextData != "SELECT 1" {
		t.Errorf("TextData = %q", result.Event.TextData)
	}
}

func TestListTasksTool(t *testing.T) {
	srv, _, tasksSvc := newTestServer(t)

	tasksSvc.HandleTaskCreated(tasks.TaskInfo{
		TaskID:        "task-1",
		Name:          "Export bacpac",
		OperationName: "ExportBacpac",
		Status:        tasks.StatusInProgress,
		IsCancelable:  true,
	})
	tasksSvc.HandleTaskStatusChanged(context.Background(), tasks.ProgressInfo{
		TaskID:  "task-1",
		Status:  tasks.StatusInProgress,
		Message: "Exporting data",
	})

	var result listTasksResult
	if err := json.Unmarshal([]byte(resultText(t, srv.executeListTasks())), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if len(result.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(result.Tasks))
	}
	got := result.Tasks[0]
	if got.TaskID != "task-1" || got.Message != "Exporting data" || !got.IsCancelable {
		t.Errorf("task summary = %+v", got)
	}
}

func TestTaskHistoryTool_NotConfigured(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var failure errorResult
	text := resultText(t, srv.executeTaskHistory(context.Background(), TaskHistoryInput{}))
	if err := json.Unmarshal([]byte(text), &failure); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if failure.Success {
		t.Error("expected success = false when history is not configured")
	}
}

// fakeController records session control requests.
type fakeController struct {
	started []StartSessionInput
	stopped []string
	paused  []string
	err     error
}

func (f *fakeController) StartSession(ctx context.Context, ownerURI, sessionName, templateName string) error {
	f.started = append(f.started, StartSessionInput{OwnerURI: ownerURI, SessionName: sessionName, TemplateName: templateName})
	return f.err
}

func (f *fakeController) StopSession(ctx context.Context, sessionID string) error {
	f.stopped = append(f.stopped, sessionID)
	return f.err
}

func (f *fakeController) PauseSession(ctx context.Context, sessionID string) error {
	f.paused = append(f.paused, sessionID)
	return f.err
}

func newControlServer(t *testing.T, controller SessionController) *Server {
	t.Helper()
	sessions := profiler.NewSessionManager(zerolog.Nop())
	tasksSvc := tasks.NewService(zerolog.Nop(), notify.NewLogNotifier(zerolog.Nop()), nil, nil)
	return New(sessions, tasksSvc, nil, controller, Config{}, zerolog.Nop())
}

func TestStartSessionTool(t *testing.T) {
	ctrl := &fakeController{}
	srv := newControlServer(t, ctrl)

	out := srv.executeStartSession(context.Background(), StartSessionInput{
		OwnerURI:     "mssql://localhost/master",
		SessionName:  "trace 1",
		TemplateName: "Standard_OnPrem",
	})

	var result controlResult
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if !result.Success {
		t.Fatalf("start failed: %s", result.Message)
	}
	if len(ctrl.started) != 1 {
		t.Fatalf("controller got %d start requests, want 1", len(ctrl.started))
	}
	if got := ctrl.started[0]; got.OwnerURI != "mssql://localhost/master" || got.SessionName != "trace 1" || got.TemplateName != "Standard_OnPrem" {
		t.Errorf("forwarded start request = %+v", got)
	}
}

func TestStartSessionTool_MissingOwnerURI(t *testing.T) {
	ctrl := &fakeController{}
	srv := newControlServer(t, ctrl)

	out := srv.executeStartSession(context.Background(), StartSessionInput{})

	var result controlResult
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("start without ownerUri should not succeed")
	}
	if len(ctrl.started) != 0 {
		t.Error("missing ownerUri must not reach the peer")
	}
}

func TestStopAndPauseSessionTools(t *testing.T) {
	ctrl := &fakeController{}
	srv := newControlServer(t, ctrl)

	var stopResult controlResult
	out := srv.executeStopSession(context.Background(), StopSessionInput{SessionID: "sess-1"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &stopResult); err != nil {
		t.Fatalf("stop result is not valid JSON: %v", err)
	}
	if !stopResult.Success {
		t.Fatalf("stop failed: %s", stopResult.Message)
	}

	var pauseResult controlResult
	out = srv.executePauseSession(context.Background(), PauseSessionInput{SessionID: "sess-2"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &pauseResult); err != nil {
		t.Fatalf("pause result is not valid JSON: %v", err)
	}
	if !pauseResult.Success {
		t.Fatalf("pause failed: %s", pauseResult.Message)
	}

	if len(ctrl.stopped) != 1 || ctrl.stopped[0] != "sess-1" {
		t.Errorf("stopped = %v, want [sess-1]", ctrl.stopped)
	}
	if len(ctrl.paused) != 1 || ctrl.paused[0] != "sess-2" {
		t.Errorf("paused = %v, want [sess-2]", ctrl.paused)
	}
}

func TestControlTools_PeerError(t *testing.T) {
	ctrl := &fakeController{err: errors.New("peer unreachable")}
	srv := newControlServer(t, ctrl)

	out := srv.executeStopSession(context.Background(), StopSessionInput{SessionID: "sess-1"})

	var result controlResult
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("peer error must surface as failure")
	}
	if result.Message != "peer unreachable" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestControlTools_NoController(t *testing.T) {
	srv := newControlServer(t, nil)

	out := srv.executeStartSession(context.Background(), StartSessionInput{OwnerURI: "mssql://localhost/master"})

	var result controlResult
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("control without a peer connection should fail")
	}
}

func TestCloseSessionTool(t *testing.T) {
	srv, sessions, _ := newTestServer(t)

	if _, err := sessions.RegisterSession(profiler.SessionDescriptor{ID: "sess-1", BufferCapacity: 10}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}

	var result controlResult
	out := srv.executeCloseSession(CloseSessionInput{SessionID: "sess-1"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if !result.Success {
		t.Fatalf("close failed: %s", result.Message)
	}
	if sessions.GetSession("sess-1") != nil {
		t.Error("session should be removed after close")
	}

	// Closing again is a soft failure.
	out = srv.executeCloseSession(CloseSessionInput{SessionID: "sess-1"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("closing an unknown session should not succeed")
	}
}

type ackCanceler struct {
	requested []string
}

func (a *ackCanceler) CancelTask(ctx context.Context, taskID string) (bool, error) {
	a.requested = append(a.requested, taskID)
	return true, nil
}

func TestCancelTaskTool(t *testing.T) {
	canceler := &ackCanceler{}
	sessions := profiler.NewSessionManager(zerolog.Nop())
	tasksSvc := tasks.NewService(zerolog.Nop(), notify.NewLogNotifier(zerolog.Nop()), canceler, nil)
	srv := New(sessions, tasksSvc, nil, nil, Config{}, zerolog.Nop())

	tasksSvc.HandleTaskCreated(tasks.TaskInfo{
		TaskID:       "task-1",
		Name:         "Export bacpac",
		IsCancelable: true,
		Status:       tasks.StatusInProgress,
	})

	var result controlResult
	out := srv.executeCancelTask(context.Background(), CancelTaskInput{TaskID: "task-1"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if !result.Success {
		t.Fatalf("cancel failed: %s", result.Message)
	}
	if len(canceler.requested) != 1 || canceler.requested[0] != "task-1" {
		t.Errorf("peer cancel requests = %v, want [task-1]", canceler.requested)
	}

	// Unknown task ids surface as soft failures.
	out = srv.executeCancelTask(context.Background(), CancelTaskInput{TaskID: "task-missing"})
	if err := json.Unmarshal([]byte(resultText(t, out)), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("canceling an unknown task should not succeed")
	}
}
