package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/agent/notify"
	"github.com/legal-assist-poc/server/internal/agent/repo"
	errx "github.com/legal-assist-poc/server/internal/core/error"
)

// scriptedRunner stores one message per turn so disconnect cleanup is observable.
type scriptedRunner struct {
	sessions model.SessionRepository

	mu  sync.Mutex
	ids []string
	fn  func(ctx context.Context, in model.TurnInput) (model.TurnResult, error)
}

func (r *scriptedRunner) Invoke(ctx context.Context, in model.TurnInput) (model.TurnResult, error) {
	r.mu.Lock()
	r.ids = append(r.ids, in.SessionID)
	r.mu.Unlock()
	if err := r.sessions.AddMessages(ctx, in.SessionID, schema.UserMessage(in.Content)); err != nil {
		return model.TurnResult{}, err
	}
	return r.fn(ctx, in)
}

func (r *scriptedRunner) sessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newWSServer(t *testing.T, fn func(ctx context.Context, in model.TurnInput) (model.TurnResult, error)) (*httptest.Server, *Server, *scriptedRunner, *repo.MemorySessionRepository) {
	t.Helper()
	sessions := repo.NewMemorySessionRepository()
	runner := &scriptedRunner{sessions: sessions, fn: fn}

	srv, err := New(Deps{Conversation: runner, Sessions: sessions}, Options{
		AllowedOrigins: []string{"*"},
		StatusBuffer:   8,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv, runner, sessions
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg outboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketUserTurnWithEscalation(t *testing.T) {
	ts, _, _, _ := newWSServer(t, func(ctx context.Context, in model.TurnInput) (model.TurnResult, error) {
		notify.Send(ctx, notify.Status{Node: "router", Message: "Escalating to lawyer"})
		notify.Send(ctx, notify.Status{Node: "generate_briefing", Message: "Briefing prepared"})
		return model.TurnResult{
			ResponseToUser:  "Let me check with our legal team.",
			MessageToLawyer: "QUESTION: " + in.Content,
			Decision:        model.DecisionEscalateToLawyer,
			AwaitingLawyer:  true,
		}, nil
	})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "Is the indemnity cap enforceable?"}))

	assert.Equal(t, outboundMessage{Type: msgStatusUpdate, Status: "Escalating to lawyer"}, readMessage(t, conn))
	assert.Equal(t, outboundMessage{Type: msgStatusUpdate, Status: "Briefing prepared"}, readMessage(t, conn))
	assert.Equal(t, outboundMessage{Type: msgUserResponse, Content: "Let me check with our legal team."}, readMessage(t, conn))
	assert.Equal(t, outboundMessage{Type: msgLawyerRequest, Content: "QUESTION: Is the indemnity cap enforceable?"}, readMessage(t, conn))
}

func TestWebsocketLawyerTurn(t *testing.T) {
	actors := make(chan model.Actor, 1)
	ts, _, _, _ := newWSServer(t, func(_ context.Context, in model.TurnInput) (model.TurnResult, error) {
		actors <- in.Actor
		return model.TurnResult{ResponseToUser: "Approved answer"}, nil
	})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgLawyerMessage, Content: "Looks good, approved"}))
	assert.Equal(t, outboundMessage{Type: msgUserResponse, Content: "Approved answer"}, readMessage(t, conn))
	assert.Equal(t, model.ActorLawyer, <-actors)
}

func TestWebsocketErrorsKeepSessionOpen(t *testing.T) {
	ts, _, _, _ := newWSServer(t, func(_ context.Context, in model.TurnInput) (model.TurnResult, error) {
		switch in.Content {
		case "":
			return model.TurnResult{}, errx.Validation(model.ErrNoTurnInput)
		case "boom":
			return model.TurnResult{}, errors.New("graph failed")
		}
		return model.TurnResult{ResponseToUser: "ok"}, nil
	})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, outboundMessage{Type: msgError, Content: "Invalid message format"}, readMessage(t, conn))

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "ping", Content: "x"}))
	msg := readMessage(t, conn)
	assert.Equal(t, msgError, msg.Type)
	assert.Contains(t, msg.Content, "Unknown message type")

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgUserMessage}))
	msg = readMessage(t, conn)
	assert.Equal(t, msgError, msg.Type)
	assert.Contains(t, msg.Content, "neither a user nor a lawyer message")

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "boom"}))
	assert.Equal(t, outboundMessage{Type: msgError, Content: "An error occurred processing the user message"}, readMessage(t, conn))

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "hello"}))
	assert.Equal(t, outboundMessage{Type: msgUserResponse, Content: "ok"}, readMessage(t, conn))
}

func TestWebsocketDisconnectDiscardsSession(t *testing.T) {
	ts, srv, runner, sessions := newWSServer(t, func(context.Context, model.TurnInput) (model.TurnResult, error) {
		return model.TurnResult{ResponseToUser: "ok"}, nil
	})
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "hello"}))
	readMessage(t, conn)

	ids := runner.sessionIDs()
	require.Len(t, ids, 1)
	history, err := sessions.LoadHistory(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Len(t, history.Messages, 1)
	assert.Equal(t, 1, srv.registry.len())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	assert.Eventually(t, func() bool {
		h, err := sessions.LoadHistory(context.Background(), ids[0])
		return err == nil && len(h.Messages) == 0 && srv.registry.len() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWebsocketSessionsAreIsolated(t *testing.T) {
	ts, _, runner, _ := newWSServer(t, func(_ context.Context, in model.TurnInput) (model.TurnResult, error) {
		return model.TurnResult{ResponseToUser: in.Content}, nil
	})
	a := dial(t, ts)
	b := dial(t, ts)

	require.NoError(t, a.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "from a"}))
	require.NoError(t, b.WriteJSON(inboundMessage{Type: msgUserMessage, Content: "from b"}))
	assert.Equal(t, "from a", readMessage(t, a).Content)
	assert.Equal(t, "from b", readMessage(t, b).Content)

	ids := runner.sessionIDs()
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestShutdownClosesSessions(t *testing.T) {
	ts, srv, _, _ := newWSServer(t, func(context.Context, model.TurnInput) (model.TurnResult, error) {
		return model.TurnResult{ResponseToUser: "ok"}, nil
	})
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return srv.registry.len() == 1 }, 5*time.Second, 10*time.Millisecond)

	srv.registry.closeAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
