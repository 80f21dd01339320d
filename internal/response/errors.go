package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrUnauthenticated  ErrCode = "UNAUTHENTICATED"
	ErrAuthUnavailable  ErrCode = "AUTH_UNAVAILABLE"
	ErrSessionReplaced  ErrCode = "SESSION_REPLACED"
	ErrOriginNotAllowed ErrCode = "ORIGIN_NOT_ALLOWED"
	ErrForbidden        ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidMode    ErrCode = "INVALID_TEST_MODE"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Test session ──────────────────────────────────────────────────
	ErrInvalidTransition    ErrCode = "INVALID_TRANSITION"
	ErrNotRunning           ErrCode = "TEST_NOT_RUNNING"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer        ErrCode = "INVALID_ANSWER"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"
	ErrNoConfirmation       ErrCode = "NO_CONFIRMATION_PENDING"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrChecklistIncomplete  ErrCode = "CHECKLIST_INCOMPLETE"
	ErrInvalidSecurityCode  ErrCode = "INVALID_SECURITY_CODE"
	ErrDeviceUnavailable    ErrCode = "DEVICE_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrUnauthenticated:
		return "Please sign in to continue."
	case ErrAuthUnavailable:
		return "Sign-in could not be verified right now. Please try again."
	case ErrSessionReplaced:
		return "This test was opened in another window."
	case ErrOriginNotAllowed:
		return "Requests from this origin are not allowed."
	case ErrForbidden:
		return "You do not have access to this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidMode:
		return "Unknown test mode."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Test session ──────────────────────────────────────────────────
	case ErrInvalidTransition:
		return "That action is not available right now."
	case ErrNotRunning:
		return "The test is not running."
	case ErrUnknownQuestion:
		return "Question not found in this test."
	case ErrInvalidAnswer:
		return "That answer is not valid for this question."
	case ErrConfirmationRequired:
		return "Some questions are unanswered. Confirm to submit anyway."
	case ErrNoConfirmation:
		return "There is no submission waiting for confirmation."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrChecklistIncomplete:
		return "Complete the device checklist first."
	case ErrInvalidSecurityCode:
		return "Incorrect security code."
	case ErrDeviceUnavailable:
		return "The device could not be started."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
