package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/fullscreen"
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/middleware"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/proctor"
	"github.com/stemsi/tara/internal/response"
	"github.com/stemsi/tara/internal/service"
	"github.com/stemsi/tara/internal/validator"
	ws "github.com/stemsi/tara/internal/websocket"
)

// actionBacklog bounds how many session actions may wait behind a slow one
// (a capture prompt, typically).
const actionBacklog = 32

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
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

// SessionHandler hosts proctored test sessions over WebSocket. The browser
// is both the UI and the platform: it renders pushed views and runs the
// capture and fullscreen commands the session issues.
type SessionHandler struct {
	proctors        *service.ProctorService
	platformTimeout time.Duration
	log             zerolog.Logger
	upgrader        websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(proctors *service.ProctorService, platformTimeout time.Duration, log zerolog.Logger, allowedOrigins []string) *SessionHandler {
	return &SessionHandler{
		proctors:        proctors,
		platformTimeout: platformTimeout,
		log:             log.With().Str("component", "session_handler").Logger(),
		upgrader:        buildUpgrader(allowedOrigins),
	}
}

type sessionQuery struct {
	EventID   string `form:"event_id" binding:"omitempty,eventid"`
	EventName string `form:"event_name" binding:"max=256"`
}

// TestSession godoc
// WS /ws/v1/tests/:mode/session?event_id=&event_name=
// Opens (or resumes) the user's session for a test mode.
func (h *SessionHandler) TestSession(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthenticated)
		return
	}

	mode, err := model.ParseTestMode(c.Param("mode"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidMode)
		return
	}

	var q sessionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	conn := ws.NewConn(raw)

	log := h.log.With().
		Str("request_id", response.RequestID(c)).
		Str("user_id", user.ID).
		Str("mode", string(mode)).
		Str("event_id", q.EventID).
		Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	client := ws.NewRemoteClient(conn, h.platformTimeout, log)
	as, err := h.proctors.Open(ctx, service.SessionParams{
		User:     user,
		Cookie:   middleware.GetCookie(c),
		Mode:     mode,
		Exam:     model.ExamContext{EventID: q.EventID, EventName: q.EventName},
		Platform: client,
		OnChange: func(v proctor.View) {
			if err := conn.WriteTyped(ws.StateEvent{Event: ws.EventState, View: v}); err != nil {
				log.Debug().Err(err).Msg("State push failed")
			}
		},
		OnNavigate: func(to string) {
			_ = conn.WriteTyped(ws.NavigateEvent{Event: ws.EventNavigate, To: to})
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Open session failed")
		code := sessionErrorCode(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
		client.Close()
		return
	}

	log = log.With().Str("session_id", as.ID()).Logger()
	log.Info().Msg("Session connected")

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-as.Evicted():
			log.Info().Msg("Session replaced by a newer connection")
			_ = conn.WriteError(string(response.ErrSessionReplaced), response.GetMessage(response.ErrSessionReplaced))
			_ = conn.Close(websocket.ClosePolicyViolation, string(response.ErrSessionReplaced))
		case <-finished:
		}
	}()

	// Session actions may block on a platform command whose answer arrives
	// on this connection, so they run off the read loop.
	actions := make(chan []byte, actionBacklog)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range actions {
			h.dispatch(ctx, conn, as, log, msg)
		}
	}()

	h.readLoop(conn, client, as, log, actions)

	close(actions)
	cancel()
	client.Close()
	<-done
	h.proctors.Release(as)
	log.Info().Str("status", string(as.Status())).Msg("Session disconnected")
}

// readLoop handles platform reports in place and queues everything else.
func (h *SessionHandler) readLoop(conn *ws.Conn, client *ws.RemoteClient, as *service.ActiveSession, log zerolog.Logger, actions chan<- []byte) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}

		switch env.Action {
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

		case ws.ActionPlatformResult:
			if req, ok := decode[ws.PlatformResult](conn, msg); ok {
				client.Resolve(*req)
			}

		case ws.ActionSignal:
			if req, ok := decode[ws.SignalRequest](conn, msg); ok {
				client.Signal(proctor.Signal{Kind: req.Signal, Value: req.Value})
			}

		case ws.ActionFullscreenChange:
			if req, ok := decode[ws.FullscreenChangeRequest](conn, msg); ok {
				as.Fullscreen.Changed(req.Active)
				as.Refresh()
			}

		case ws.ActionTrackEnded:
			if req, ok := decode[ws.TrackEndedRequest](conn, msg); ok {
				as.Media.TrackEnded(req.StreamID, req.Track)
			}

		default:
			select {
			case actions <- msg:
			default:
				log.Warn().Str("action", string(env.Action)).Msg("Action backlog full")
				_ = conn.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
			}
		}
	}
}

// dispatch runs one session action.
func (h *SessionHandler) dispatch(ctx context.Context, conn *ws.Conn, as *service.ActiveSession, log zerolog.Logger, msg []byte) {
	var env ws.RequestEnvelope
	_ = json.Unmarshal(msg, &env)

	var err error
	switch env.Action {
	case ws.ActionToggleCamera:
		if req, ok := decode[ws.ToggleRequest](conn, msg); ok {
			err = as.SetCamera(ctx, req.On)
		}
	case ws.ActionToggleScreen:
		if req, ok := decode[ws.ToggleRequest](conn, msg); ok {
			err = as.SetScreen(ctx, req.On)
		}
	case ws.ActionToggleFullscreen:
		if req, ok := decode[ws.ToggleRequest](conn, msg); ok {
			err = as.SetFullscreen(ctx, req.On)
		}
	case ws.ActionCode:
		if req, ok := decode[ws.CodeRequest](conn, msg); ok {
			err = as.EnterCode(req.Code)
		}
	case ws.ActionStart:
		err = as.Start()
	case ws.ActionAnswer:
		if req, ok := decode[ws.AnswerRequest](conn, msg); ok {
			err = as.SelectAnswer(req.QID, req.Answer())
		}
	case ws.ActionMark:
		if req, ok := decode[ws.MarkRequest](conn, msg); ok {
			err = as.ToggleMarkForReview(req.QID)
		}
	case ws.ActionGoto:
		if req, ok := decode[ws.GotoRequest](conn, msg); ok {
			err = as.SetCurrentIndex(req.Index)
		}
	case ws.ActionSubmit:
		err = as.Submit()
	case ws.ActionConfirmSubmit:
		err = as.ConfirmSubmit()
	case ws.ActionCancelSubmit:
		as.CancelSubmitConfirmation()
	case ws.ActionRetrySubmit:
		err = as.RetrySubmit()
	default:
		log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrUnknownAction), "unknown action: "+string(env.Action))
		return
	}

	if err == nil || errors.Is(err, proctor.ErrConfirmationRequired) {
		// The view already carries the confirmation prompt.
		return
	}
	if errors.Is(err, ws.ErrClientClosed) || errors.Is(err, context.Canceled) {
		return
	}

	code := sessionErrorCode(err)
	if code == response.ErrInternal {
		log.Error().Err(err).Str("action", string(env.Action)).Msg("Session action failed")
	}
	message := response.GetMessage(code)
	var gerr *proctor.GateError
	if errors.As(err, &gerr) {
		message = gerr.Message()
	}
	_ = conn.WriteError(string(code), message)
}

// decode parses and validates msg into T, answering the client on failure.
func decode[T any](conn *ws.Conn, msg []byte) (*T, bool) {
	var req T
	if err := json.Unmarshal(msg, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return nil, false
	}
	if err := validator.Validate(&req); err != nil {
		_ = conn.WriteFields(string(response.ErrValidation), validator.TranslateErrors(err))
		return nil, false
	}
	return &req, true
}

// sessionErrorCode maps session and platform errors to client error codes.
func sessionErrorCode(err error) response.ErrCode {
	var gerr *proctor.GateError
	if errors.As(err, &gerr) {
		if gerr.Reason == proctor.GateWrongCode {
			return response.ErrInvalidSecurityCode
		}
		return response.ErrChecklistIncomplete
	}

	switch {
	case errors.Is(err, proctor.ErrInvalidTransition):
		return response.ErrInvalidTransition
	case errors.Is(err, proctor.ErrNotRunning):
		return response.ErrNotRunning
	case errors.Is(err, proctor.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, proctor.ErrInvalidAnswer):
		return response.ErrInvalidAnswer
	case errors.Is(err, proctor.ErrConfirmationRequired):
		return response.ErrConfirmationRequired
	case errors.Is(err, proctor.ErrNoConfirmationPending):
		return response.ErrNoConfirmation
	case errors.Is(err, proctor.ErrNoQuestions):
		return response.ErrNoQuestions
	case errors.Is(err, media.ErrDenied),
		errors.Is(err, media.ErrWrongSurface),
		errors.Is(err, media.ErrNoVideo),
		errors.Is(err, fullscreen.ErrUnavailable),
		errors.Is(err, ws.ErrPlatformTimeout):
		return response.ErrDeviceUnavailable
	default:
		return response.ErrInternal
	}
}
