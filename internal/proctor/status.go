package proctor

// Status is the lifecycle state of a proctored session.
type Status string

const (
	StatusLobby      Status = "LOBBY"
	StatusRunning    Status = "RUNNING"
	StatusPaused     Status = "PAUSED"
	StatusSubmitting Status = "SUBMITTING"
	StatusSubmitted  Status = "SUBMITTED"
	StatusFailed     Status = "FAILED"
)

// SubmitReason says what triggered a submission.
type SubmitReason string

const (
	ReasonManual SubmitReason = "manual"
	ReasonTimer  SubmitReason = "timer"
	ReasonLives  SubmitReason = "lives"
)
