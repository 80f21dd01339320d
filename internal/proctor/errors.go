package proctor

import (
	"errors"
	"fmt"
)

// Domain Errors
var (
	ErrInvalidTransition     = errors.New("proctor: action not allowed in current status")
	ErrNotRunning            = errors.New("proctor: test is not running")
	ErrUnknownQuestion       = errors.New("proctor: unknown question")
	ErrInvalidAnswer         = errors.New("proctor: answer does not fit the question")
	ErrConfirmationRequired  = errors.New("proctor: unanswered questions need confirmation")
	ErrNoConfirmationPending = errors.New("proctor: no submission awaiting confirmation")
	ErrNoQuestions           = errors.New("proctor: question set is empty")
	ErrInvalidSecurityCode   = errors.New("proctor: security code must be 6 characters")
)

// GateReason names the first failing condition of the start/resume gate.
type GateReason string

const (
	GateCameraOff       GateReason = "CAMERA_OFF"
	GateMicMissing      GateReason = "MIC_MISSING"
	GateScreenNotShared GateReason = "SCREEN_NOT_SHARED"
	GateNotFullscreen   GateReason = "NOT_FULLSCREEN"
	GateWrongCode       GateReason = "WRONG_CODE"
)

// GateError blocks Lobby/Paused → Running.
type GateError struct {
	Reason GateReason
}

func (e *GateError) Error() string {
	return fmt.Sprintf("proctor: gate closed (%s)", e.Reason)
}

// Message is the user-facing text for the failing condition.
func (e *GateError) Message() string {
	switch e.Reason {
	case GateCameraOff:
		return "Turn on your camera to continue."
	case GateMicMissing:
		return "No microphone detected. Allow microphone access together with the camera."
	case GateScreenNotShared:
		return "Share your entire screen to continue."
	case GateNotFullscreen:
		return "Enter fullscreen mode to continue."
	case GateWrongCode:
		return "Incorrect security code."
	default:
		return "The test cannot start yet."
	}
}

// IsChecklist reports whether the failure is a device/fullscreen condition
// rather than the security code.
func (e *GateError) IsChecklist() bool {
	return e.Reason != GateWrongCode
}
