package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	ws "github.com/stemsi/cbt-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a running exam: answers and navigation come in,
// countdown ticks and the final outcome go out, and focus events from the
// page feed the proctoring monitor.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exam/stream?token=<jwt>
func (h *WSHandler) ExamStream(c *gin.Context) {
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sess, err := h.sessions.Get(student.ID)
	if err != nil {
		failWith(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("student_id", student.ID).Str("nis", student.NIS).Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	signals := make(chan exam.Signal, 4)
	detach, err := h.sessions.Proctor(ctx, student.ID, signals)
	if err != nil {
		status, code := errorStatus(err)
		_ = ws.WriteError(conn, string(code), http.StatusText(status))
		return
	}
	defer detach()

	out := make(chan interface{}, 16)
	done := make(chan struct{})
	go h.writeLoop(ctx, conn, wsLog, events, out, done)

	wsLog.Info().Msg("Student connected to exam stream")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		reply := h.dispatch(ctx, sess, signals, &msg)
		if reply == nil {
			continue
		}
		select {
		case out <- reply:
		case <-done:
			return
		}
	}
}

// dispatch applies one client action. A nil reply means the outcome is
// delivered as a session event instead.
func (h *WSHandler) dispatch(ctx context.Context, sess *exam.Session, signals chan<- exam.Signal, msg *ws.RequestPayload) interface{} {
	switch msg.Action {
	case ws.ActionPing:
		return ws.SimpleResponse{Event: ws.EventPong}

	case ws.ActionAnswer:
		if msg.Position == nil {
			return actionError(exam.ErrInvalidPosition)
		}
		if err := sess.RecordAnswer(*msg.Position, msg.Answer); err != nil {
			return actionError(err)
		}
		return ws.PositionResponse{Event: ws.EventSaved, Position: *msg.Position}

	case ws.ActionNavigate:
		if msg.Position == nil {
			return actionError(exam.ErrInvalidPosition)
		}
		if err := sess.Navigate(*msg.Position); err != nil {
			return actionError(err)
		}
		return ws.PositionResponse{Event: ws.EventNavigated, Position: *msg.Position}

	case ws.ActionBeginSubmit:
		return errorOrNil(sess.BeginSubmit())

	case ws.ActionCancelSubmit:
		return errorOrNil(sess.CancelSubmit())

	case ws.ActionSubmit:
		return errorOrNil(sess.Submit())

	case ws.ActionVisibility:
		if msg.Hidden {
			sendSignal(ctx, signals, exam.SignalVisibilityHidden)
		}
		return nil

	case ws.ActionBlur:
		sendSignal(ctx, signals, exam.SignalWindowBlur)
		return nil

	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: "unknown action: " + string(msg.Action)}
	}
}

// writeLoop is the only writer on conn. It ends after the final outcome
// of the attempt has been sent or the session stops.
func (h *WSHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	wsLog zerolog.Logger,
	events <-chan exam.Event,
	out <-chan interface{},
	done chan<- struct{},
) {
	defer close(done)
	// Closing the socket unblocks the reader.
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline())
				return
			}
			payload, final := eventPayload(ev)
			if err := ws.WriteTyped(conn, payload); err != nil {
				wsLog.Debug().Err(err).Msg("Event write failed")
				return
			}
			if final {
				wsLog.Info().Str("reason", string(ev.Reason)).Msg("Exam finished, closing stream")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Reason)), deadline())
				return
			}

		case msg := <-out:
			if err := ws.WriteTyped(conn, msg); err != nil {
				wsLog.Debug().Err(err).Msg("Reply write failed")
				return
			}
		}
	}
}

// eventPayload converts a session event to its wire form and reports
// whether it is the last one of the attempt.
func eventPayload(ev exam.Event) (interface{}, bool) {
	switch ev.Type {
	case exam.EventTick:
		return ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining}, false
	case exam.EventSubmitPending:
		return ws.TickResponse{Event: ws.EventSubmitPending, Remaining: ev.Remaining}, false
	case exam.EventSubmitResumed:
		return ws.TickResponse{Event: ws.EventSubmitCancelled, Remaining: ev.Remaining}, false
	case exam.EventFinished:
		if ev.Reason == model.EndReasonViolation || ev.Result == nil {
			return ws.EndedResponse{
				Event:     ws.EventViolation,
				EndReason: ev.Reason,
				Code:      string(response.ErrExamForfeited),
				Message:   response.GetMessage(response.ErrExamForfeited),
				Reload:    true,
			}, true
		}
		r := ev.Result
		return ws.GradedResponse{
			Event:        ws.EventGraded,
			EndReason:    r.EndReason,
			Score:        r.ScoreRounded,
			CorrectCount: r.CorrectCount,
			Total:        r.TotalQuestions,
		}, true
	}
	return ws.SimpleResponse{Event: ws.Event(ev.Type)}, false
}

func deadline() time.Time {
	return time.Now().Add(ws.WriteWait)
}

func sendSignal(ctx context.Context, signals chan<- exam.Signal, sig exam.Signal) {
	select {
	case signals <- sig:
	case <-ctx.Done():
	}
}

func actionError(err error) ws.ErrorResponse {
	_, code := errorStatus(err)
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: err.Error()}
}

func errorOrNil(err error) interface{} {
	if err == nil {
		return nil
	}
	return actionError(err)
}
