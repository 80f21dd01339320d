package websocket

import (
	"github.com/stemsi/tara/internal/media"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing             Action = "ping"
	ActionToggleCamera     Action = "toggle_camera"
	ActionToggleScreen     Action = "toggle_screen"
	ActionToggleFullscreen Action = "toggle_fullscreen"
	ActionCode             Action = "code"
	ActionStart            Action = "start"
	ActionAnswer           Action = "answer"
	ActionMark             Action = "mark"
	ActionGoto             Action = "goto"
	ActionSubmit           Action = "submit"
	ActionConfirmSubmit    Action = "confirm_submit"
	ActionCancelSubmit     Action = "cancel_submit"
	ActionRetrySubmit      Action = "retry_submit"

	// Platform reports. These are handled on the read loop, never queued
	// behind a session action.
	ActionSignal           Action = "signal"
	ActionFullscreenChange Action = "fullscreen_change"
	ActionTrackEnded       Action = "track_ended"
	ActionPlatformResult   Action = "platform_result"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ToggleRequest switches a device (camera, screen, fullscreen) on or off.
type ToggleRequest struct {
	Action Action `json:"action"`
	On     bool   `json:"on"`
}

// CodeRequest carries the typed security code.
type CodeRequest struct {
	Action Action `json:"action"`
	Code   string `json:"code" binding:"max=64"`
}

// AnswerRequest selects an answer. A null option with no coding payload clears it.
type AnswerRequest struct {
	Action Action                  `json:"action"`
	QID    string                  `json:"q_id" binding:"required,max=128"`
	Option *int                    `json:"option" binding:"omitempty,min=0"`
	Coding *model.CodingSubmission `json:"coding"`
}

// Answer converts the request into a session answer. nil clears the selection.
func (r *AnswerRequest) Answer() *model.Answer {
	switch {
	case r.Coding != nil:
		a := model.CodingAnswer(*r.Coding)
		return &a
	case r.Option != nil:
		a := model.OptionAnswer(*r.Option)
		return &a
	default:
		return nil
	}
}

// MarkRequest toggles the review flag of a question.
type MarkRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id" binding:"required,max=128"`
}

// GotoRequest moves to a question by index.
type GotoRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index" binding:"min=0"`
}

// SignalRequest reports a page visibility or window focus change.
type SignalRequest struct {
	Action Action             `json:"action"`
	Signal proctor.SignalKind `json:"signal" binding:"required,oneof=visibility focus"`
	Value  bool               `json:"value"`
}

// FullscreenChangeRequest reports the platform's fullscreen state.
type FullscreenChangeRequest struct {
	Action Action `json:"action"`
	Active bool   `json:"active"`
}

// TrackEndedRequest reports a capture track that ended outside the app.
type TrackEndedRequest struct {
	Action   Action          `json:"action"`
	StreamID string          `json:"stream_id" binding:"required"`
	Track    media.TrackKind `json:"track" binding:"required,oneof=video audio"`
}

// PlatformResult answers a CommandEvent.
type PlatformResult struct {
	Action    Action            `json:"action"`
	RequestID string            `json:"request_id" binding:"required"`
	OK        bool              `json:"ok"`
	Error     string            `json:"error,omitempty"`
	StreamID  string            `json:"stream_id,omitempty"`
	Surface   media.Surface     `json:"surface,omitempty"`
	Tracks    []media.TrackKind `json:"tracks,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventCommand  Event = "command"
	EventNavigate Event = "navigate"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// Command is a platform operation the client must perform and answer with
// a PlatformResult carrying the same request id.
type Command string

const (
	CommandCaptureCamera   Command = "capture_camera"
	CommandCaptureScreen   Command = "capture_screen"
	CommandStopStream      Command = "stop_stream"
	CommandEnterFullscreen Command = "enter_fullscreen"
	CommandExitFullscreen  Command = "exit_fullscreen"
)

// PlatformError values a client puts in PlatformResult.Error.
const (
	PlatformErrDenied      = "denied"
	PlatformErrUnsupported = "unsupported"
)

// StateEvent pushes the whole session view.
type StateEvent struct {
	Event Event `json:"event"`
	proctor.View
}

// CommandEvent asks the client to run a platform operation. StopStream is
// fire-and-forget and carries no request id.
type CommandEvent struct {
	Event     Event   `json:"event"`
	RequestID string  `json:"request_id,omitempty"`
	Command   Command `json:"command"`
	StreamID  string  `json:"stream_id,omitempty"`
}

// NavigateEvent tells the client to leave the test page.
type NavigateEvent struct {
	Event Event  `json:"event"`
	To    string `json:"to"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
