// Package toolsservice is the JSON-RPC peer client for the SQL Tools
// Service. The peer emits typed notifications (trace events, task
// lifecycle) and accepts typed requests (session control, task
// cancellation) over a websocket carrying one JSON message per frame.
package toolsservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/constants"
	"github.com/remora-db/remora/internal/profiler"
	"github.com/remora-db/remora/internal/tasks"
)

// Notification methods inbound from the peer.
const (
	MethodTaskCreated       = "tasks/newtaskcreated"
	MethodTaskStatusChanged = "tasks/statuschanged"
	MethodSessionCreated    = "profiler/sessioncreated"
	MethodEventsAvailable   = "profiler/eventsavailable"
	MethodSessionStopped    = "profiler/sessionstopped"
)

// Request methods sent to the peer.
const (
	MethodCancelTask   = "tasks/canceltask"
	MethodStartSession = "profiler/start"
	MethodStopSession  = "profiler/stop"
	MethodPauseSession = "profiler/pause"
)

// message is one JSON-RPC frame in either direction.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sessionCreatedParams is the profiler/sessioncreated payload.
type sessionCreatedParams struct {
	SessionID      string `json:"sessionId"`
	SessionName    string `json:"sessionName"`
	TemplateName   string `json:"templateName"`
	OwnerURI       string `json:"ownerUri"`
	State          string `json:"state"`
	BufferCapacity int    `json:"bufferCapacity"`
}

// eventsAvailableParams is the profiler/eventsavailable payload: a
// batch of trace events for one session.
type eventsAvailableParams struct {
	SessionID string              `json:"sessionId"`
	Events    []profiler.EventRow `json:"events"`
}

// sessionStoppedParams is the profiler/sessionstopped payload.
type sessionStoppedParams struct {
	SessionID string `json:"sessionId"`
	Failed    bool   `json:"failed,omitempty"`
}

// Client speaks the peer protocol: a single read loop dispatches
// notifications in receipt order, writes are serialized, and
// request/response pairs are correlated by numeric id.
type Client struct {
	logger   zerolog.Logger
	conn     *websocket.Conn
	sessions *profiler.SessionManager
	tasksSvc *tasks.Service

	writeMu sync.Mutex

	requestTimeout time.Duration

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan message
}

// Dial connects to the peer endpoint and returns a client ready for
// Run.
func Dial(ctx context.Context, endpoint string, sessions *profiler.SessionManager, tasksSvc *tasks.Service, logger zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tools service at %s: %w", endpoint, err)
	}
	return NewClient(conn, sessions, tasksSvc, logger), nil
}

// NewClient wraps an established connection.
func NewClient(conn *websocket.Conn, sessions *profiler.SessionManager, tasksSvc *tasks.Service, logger zerolog.Logger) *Client {
	return &Client{
		logger:         logger.With().Str("component", "tools_service").Logger(),
		conn:           conn,
		sessions:       sessions,
		tasksSvc:       tasksSvc,
		requestTimeout: constants.DefaultPeerRequestTimeout,
		pending:        make(map[uint64]chan message),
	}
}

// SetRequestTimeout overrides the per-request deadline for calls to
// the peer. Zero disables the deadline.
func (c *Client) SetRequestTimeout(timeout time.Duration) {
	c.requestTimeout = timeout
}

// Run reads frames until the connection closes or the context is
// cancelled. Notifications are dispatched inline, so per-session event
// order and per-task status order follow receipt order.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("tools service connection closed: %w", err)
		}
		c.handleFrame(ctx, data)
	}
}

// handleFrame routes one inbound frame. Malformed frames are logged
// and dropped; a crash here would sever the trace stream.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Dropping malformed frame from tools service")
		return
	}

	// Response to one of our requests.
	if msg.ID != nil && msg.Method == "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Warn().Uint64("id", *msg.ID).Msg("Response for unknown request id")
			return
		}
		ch <- msg
		return
	}

	c.dispatchNotification(ctx, msg)
}

func (c *Client) dispatchNotification(ctx context.Context, msg message) {
	switch msg.Method {
	case MethodSessionCreated:
		var params sessionCreatedParams
		if !c.decodeParams(msg, &params) {
			return
		}
		_, err := c.sessions.RegisterSession(profiler.SessionDescriptor{
			ID:             params.SessionID,
			Name:           params.SessionName,
			TemplateName:   params.TemplateName,
			OwnerURI:       params.OwnerURI,
			State:          profiler.ParseSessionState(params.State),
			BufferCapacity: params.BufferCapacity,
		})
		if err != nil {
			// Already logged and counted by the manager.
			return
		}

	case MethodEventsAvailable:
		var params eventsAvailableParams
		if !c.decodeParams(msg, &params) {
			return
		}
		for _, row := range params.Events {
			c.sessions.IngestEvent(params.SessionID, row)
		}

	case MethodSessionStopped:
		var params sessionStoppedParams
		if !c.decodeParams(msg, &params) {
			return
		}
		session := c.sessions.GetSession(params.SessionID)
		if session == nil {
			c.logger.Warn().Str("session_id", params.SessionID).Msg("Stop notification for unknown session")
			return
		}
		if params.Failed {
			session.SetState(profiler.StateFailed)
		} else {
			session.SetState(profiler.StateStopped)
		}

	case MethodTaskCreated:
		var info tasks.TaskInfo
		if !c.decodeParams(msg, &info) {
			return
		}
		c.tasksSvc.HandleTaskCreated(info)

	case MethodTaskStatusChanged:
		var progress tasks.ProgressInfo
		if !c.decodeParams(msg, &progress) {
			return
		}
		c.tasksSvc.HandleTaskStatusChanged(ctx, progress)

	default:
		c.logger.Debug().Str("method", msg.Method).Msg("Ignoring unhandled notification")
	}
}

func (c *Client) decodeParams(msg message, out any) bool {
	if err := json.Unmarshal(msg.Params, out); err != nil {
		c.logger.Warn().Err(err).Str("method", msg.Method).Msg("Dropping notification with malformed params")
		return false
	}
	return true
}

// call sends a request and waits for the correlated response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	ch := make(chan message, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := message{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  paramsJSON,
	}

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// CancelTask requests cancellation of a task. Implements
// tasks.Canceler; the boolean is the peer's acknowledgement, not a
// completed cancellation.
func (c *Client) CancelTask(ctx context.Context, taskID string) (bool, error) {
	result, err := c.call(ctx, MethodCancelTask, map[string]string{"taskId": taskID})
	if err != nil {
		return false, err
	}
	var acked bool
	if err := json.Unmarshal(result, &acked); err != nil {
		return false, fmt.Errorf("unexpected canceltask response: %w", err)
	}
	return acked, nil
}

// StartSession asks the peer to start a trace session from a template.
// The session only becomes visible locally when the peer confirms via
// profiler/sessioncreated.
func (c *Client) StartSession(ctx context.Context, ownerURI, sessionName, templateName string) error {
	if sessionName == "" {
		sessionName = "remora-" + uuid.NewString()
	}
	_, err := c.call(ctx, MethodStartSession, map[string]string{
		"ownerUri":     ownerURI,
		"sessionName":  sessionName,
		"templateName": templateName,
	})
	return err
}

// StopSession asks the peer to stop a trace session.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	_, err := c.call(ctx, MethodStopSession, map[string]string{"sessionId": sessionID})
	return err
}

// PauseSession toggles event flow for a trace session.
func (c *Client) PauseSession(ctx context.Context, sessionID string) error {
	_, err := c.call(ctx, MethodPauseSession, map[string]string{"sessionId": sessionID})
	return err
}
