package proctor

// ViolationKind names a breach of proctoring conditions.
type ViolationKind string

const (
	ViolationTabHidden      ViolationKind = "TAB_HIDDEN"
	ViolationFocusLost      ViolationKind = "FOCUS_LOST"
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
	ViolationCameraLost     ViolationKind = "CAMERA_LOST"
	ViolationMicLost        ViolationKind = "MIC_LOST"
	ViolationScreenLost     ViolationKind = "SCREEN_SHARE_LOST"
)

// Violation is one detected occurrence.
type Violation struct {
	Kind   ViolationKind
	Reason string
}

func newViolation(kind ViolationKind) Violation {
	return Violation{Kind: kind, Reason: kind.describe()}
}

func (k ViolationKind) describe() string {
	switch k {
	case ViolationTabHidden:
		return "you switched tabs"
	case ViolationFocusLost:
		return "the test window lost focus"
	case ViolationFullscreenExit:
		return "you left fullscreen"
	case ViolationCameraLost:
		return "your camera was turned off"
	case ViolationMicLost:
		return "your microphone stopped"
	case ViolationScreenLost:
		return "screen sharing stopped"
	default:
		return "a proctoring rule was broken"
	}
}
