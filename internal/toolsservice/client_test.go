package toolsservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/notify"
	"github.com/remora-db/remora/internal/profiler"
	"github.com/remora-db/remora/internal/tasks"
)

func newDispatchClient(t *testing.T) (*Client, *profiler.SessionManager, *tasks.Service) {
	t.Helper()
	sessions := profiler.NewSessionManager(zerolog.Nop())
	tasksSvc := tasks.NewService(zerolog.Nop(), notify.NewLogNotifier(zerolog.Nop()), nil, nil)
	client := NewClient(nil, sessions, tasksSvc, zerolog.Nop())
	return client, sessions, tasksSvc
}

func frame(t *testing.T, method string, params any) []byte {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  json.RawMessage(paramsJSON),
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func TestClient_SessionLifecycleNotifications(t *testing.T) {
	client, sessions, _ := newDispatchClient(t)
	ctx := context.Background()

	client.handleFrame(ctx, frame(t, MethodSessionCreated, map[string]any{
		"sessionId":      "sess-1",
		"sessionName":    "trace 1",
		"templateName":   "Standard_OnPrem",
		"ownerUri":       "mssql://localhost/master",
		"state":          "running",
		"bufferCapacity": 100,
	}))

	session := sessions.GetSession("sess-1")
	if session == nil {
		t.Fatal("session not registered from notification")
	}
	if session.State() != profiler.StateRunning {
		t.Errorf("State() = %v, want running", session.State())
	}
	if session.BufferCapacity() != 100 {
		t.Errorf("BufferCapacity() = %d, want 100", session.BufferCapacity())
	}

	client.handleFrame(ctx, frame(t, MethodEventsAvailable, map[string]any{
		"sessionId": "sess-1",
		"events": []map[string]any{
			{"eventClass": "SQL:BatchCompleted", "textData": "SELECT 1", "duration": 12, "spid": 51},
			{"eventClass": "RPC:Completed", "textData": "exec sp_who2", "spid": 52},
		},
	}))

	if got := session.EventCount(); got != 2 {
		t.Fatalf("EventCount() = %d, want 2", got)
	}
	rows := session.Snapshot()
	if rows[0].EventClass != "SQL:BatchCompleted" || *rows[0].Duration != 12 {
		t.Errorf("first ingested row = %+v", rows[0])
	}
	if rows[1].Duration != nil {
		t.Errorf("missing duration must stay nil, got %v", *rows[1].Duration)
	}

	client.handleFrame(ctx, frame(t, MethodSessionStopped, map[string]any{
		"sessionId": "sess-1",
	}))
	if session.State() != profiler.StateStopped {
		t.Errorf("State() = %v, want stopped after stop notification", session.State())
	}
}

func TestClient_SessionStoppedFailed(t *testing.T) {
	client, sessions, _ := newDispatchClient(t)
	ctx := context.Background()

	client.handleFrame(ctx, frame(t, MethodSessionCreated, map[string]any{
		"sessionId": "sess-1",
		"state":     "running",
	}))
	client.handleFrame(ctx, frame(t, MethodSessionStopped, map[string]any{
		"sessionId": "sess-1",
		"failed":    true,
	}))

	if got := sessions.GetSession("sess-1").State(); got != profiler.StateFailed {
		t.Errorf("State() = %v, want failed", got)
	}
}

func TestClient_TaskNotifications(t *testing.T) {
	client, _, tasksSvc := newDispatchClient(t)
	ctx := context.Background()

	client.handleFrame(ctx, frame(t, MethodTaskCreated, map[string]any{
		"taskId":        "task-1",
		"name":          "Deploy dacpac",
		"operationName": "DeployDacpac",
		"isCancelable":  true,
	}))

	active := tasksSvc.ActiveTasks()
	if len(active) != 1 || active[0].TaskID != "task-1" {
		t.Fatalf("ActiveTasks() = %+v, want the created task", active)
	}

	client.handleFrame(ctx, frame(t, MethodTaskStatusChanged, map[string]any{
		"taskId":  "task-1",
		"status":  int(tasks.StatusInProgress),
		"message": "Deploying schema",
	}))
	if got := tasksSvc.ActiveTasks()[0].Message; got != "Deploying schema" {
		t.Errorf("progress message = %q", got)
	}

	client.handleFrame(ctx, frame(t, MethodTaskStatusChanged, map[string]any{
		"taskId": "task-1",
		"status": int(tasks.StatusSucceeded),
	}))
	if len(tasksSvc.ActiveTasks()) != 0 {
		t.Error("task still active after terminal status")
	}
}

func TestClient_MalformedFramesDropped(t *testing.T) {
	client, sessions, _ := newDispatchClient(t)
	ctx := context.Background()

	// None of these may panic.
	client.handleFrame(ctx, []byte(`{not json`))
	client.handleFrame(ctx, []byte(`{"jsonrpc":"2.0","id":99,"result":true}`))
	client.handleFrame(ctx, frame(t, MethodEventsAvailable, map[string]any{
		"sessionId": "unknown",
		"events":    []map[string]any{{"eventClass": "x"}},
	}))
	client.handleFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"profiler/eventsavailable","params":"not an object"}`))
	client.handleFrame(ctx, frame(t, "some/unknownmethod", map[string]any{}))

	if got := sessions.DroppedEvents(); got != 1 {
		t.Errorf("DroppedEvents() = %d, want 1 (only the unknown-session event)", got)
	}
}

// echoPeer is a minimal tools-service stand-in answering canceltask
// requests over a real websocket.
func echoPeer(t *testing.T, ack bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Method != MethodCancelTask || msg.ID == nil {
				continue
			}
			resultJSON, _ := json.Marshal(ack)
			resp := message{JSONRPC: "2.0", ID: msg.ID, Result: resultJSON}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func TestClient_CancelTaskRoundTrip(t *testing.T) {
	server := echoPeer(t, true)
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := profiler.NewSessionManager(zerolog.Nop())
	tasksSvc := tasks.NewService(zerolog.Nop(), notify.NewLogNotifier(zerolog.Nop()), nil, nil)

	client, err := Dial(ctx, endpoint, sessions, tasksSvc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	acked, err := client.CancelTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("CancelTask() error = %v", err)
	}
	if !acked {
		t.Error("CancelTask() acked = false, want true")
	}

	cancel()
	<-runErr
}
