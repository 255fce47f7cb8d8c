package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/legal-assist-poc/server/internal/agent/graph"
	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/agent/notify"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	logx "github.com/legal-assist-poc/server/pkg/logger"
	"github.com/legal-assist-poc/server/pkg/metrics"
)

// Envelope types on the session socket.
const (
	msgUserMessage   = "user_message"
	msgLawyerMessage = "lawyer_message"

	msgUserResponse  = "user_response"
	msgLawyerRequest = "lawyer_request"
	msgStatusUpdate  = "status_update"
	msgError         = "error"
)

const (
	maxMessageBytes = 64 << 10
	writeWait       = 10 * time.Second
	outboundBuffer  = 16
)

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

// wsSession is one connected client. Only writeLoop writes data frames to conn.
type wsSession struct {
	id       string
	conn     *websocket.Conn
	notifier *notify.ChannelNotifier
	out      chan outboundMessage
	done     chan struct{}
	log      zerolog.Logger
}

func newWSSession(conn *websocket.Conn, statusBuffer int) *wsSession {
	id := uuid.NewString()
	return &wsSession{
		id:       id,
		conn:     conn,
		notifier: notify.NewChannelNotifier(statusBuffer),
		out:      make(chan outboundMessage, outboundBuffer),
		done:     make(chan struct{}),
		log:      logx.With().Str("session_id", id).Logger(),
	}
}

func (s *wsSession) send(msg outboundMessage) {
	s.out <- msg
}

func (s *wsSession) sendError(content string) {
	s.send(outboundMessage{Type: msgError, Content: content})
}

// writeLoop serialises every frame. Status updates queued before a reply are
// flushed ahead of it so clients see them in order.
func (s *wsSession) writeLoop() {
	defer close(s.done)

	statuses := s.notifier.C()
	broken := false
	write := func(msg outboundMessage) {
		if broken {
			return
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(msg); err != nil {
			broken = true
			s.log.Warn().Err(err).Msg("Session write failed")
		}
	}

	for {
		select {
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			write(statusMessage(st))
		case msg, ok := <-s.out:
			if !ok {
				return
			}
		drain:
			for statuses != nil {
				select {
				case st, ok := <-statuses:
					if !ok {
						statuses = nil
						break drain
					}
					write(statusMessage(st))
				default:
					break drain
				}
			}
			write(msg)
		}
	}
}

func statusMessage(st notify.Status) outboundMessage {
	return outboundMessage{Type: msgStatusUpdate, Status: st.Message}
}

// close stops the writer after it has flushed everything queued and closes the socket.
func (s *wsSession) close() {
	s.notifier.Close()
	close(s.out)
	<-s.done
	s.conn.Close()
}

// sessionRegistry tracks live sessions so shutdown can close them.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*wsSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*wsSession)}
}

func (r *sessionRegistry) add(s *wsSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeAll asks every client to go away; each read loop then ends its session.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, s := range r.sessions {
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			s.conn.Close()
		}
	}
}

type wsHandler struct {
	runner       graph.Runner
	sessions     model.SessionRepository
	registry     *sessionRegistry
	upgrader     websocket.Upgrader
	statusBuffer int
}

func newWSHandler(runner graph.Runner, sessions model.SessionRepository, registry *sessionRegistry, origins originPolicy, statusBuffer int) *wsHandler {
	return &wsHandler{
		runner:   runner,
		sessions: sessions,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     origins.allowsRequest,
		},
		statusBuffer: statusBuffer,
	}
}

func (h *wsHandler) serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logx.Warn().Err(err).Str("request_id", requestIDFrom(c)).Msg("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	sess := newWSSession(conn, h.statusBuffer)
	h.registry.add(sess)
	metrics.ActiveSessions.Inc()
	sess.log.Info().Msg("Session opened")

	go sess.writeLoop()
	defer h.end(sess)

	ctx := notify.WithNotifier(context.WithoutCancel(c.Request.Context()), sess.notifier)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				sess.log.Warn().Err(err).Msg("Session read failed")
			}
			return
		}
		h.handle(ctx, sess, data)
	}
}

func (h *wsHandler) handle(ctx context.Context, sess *wsSession, data []byte) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		sess.sendError("Invalid message format")
		return
	}

	var actor model.Actor
	switch in.Type {
	case msgUserMessage:
		actor = model.ActorUser
	case msgLawyerMessage:
		actor = model.ActorLawyer
	default:
		sess.sendError(fmt.Sprintf("Unknown message type %q", in.Type))
		return
	}

	res, err := h.runner.Invoke(ctx, model.TurnInput{
		SessionID: sess.id,
		Actor:     actor,
		Content:   in.Content,
	})
	if err != nil {
		if errx.StatusOf(err) == http.StatusBadRequest {
			sess.sendError(errx.MessageOf(err))
			return
		}
		sess.log.Error().Err(err).Str("actor", string(actor)).Msg("Turn failed")
		sess.sendError(fmt.Sprintf("An error occurred processing the %s message", actor))
		return
	}

	sess.send(outboundMessage{Type: msgUserResponse, Content: res.ResponseToUser})
	if res.MessageToLawyer != "" {
		sess.send(outboundMessage{Type: msgLawyerRequest, Content: res.MessageToLawyer})
	}
}

// end discards every trace of the session.
func (h *wsHandler) end(sess *wsSession) {
	sess.close()
	h.registry.remove(sess.id)
	metrics.ActiveSessions.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.sessions.ClearSession(ctx, sess.id); err != nil {
		sess.log.Warn().Err(err).Msg("Failed to clear session state")
	}
	sess.log.Info().Msg("Session closed")
}
