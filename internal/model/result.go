package model

// EnvironmentUsage records which proctoring devices were in use at submission.
type EnvironmentUsage struct {
	CameraEnabled      bool `json:"cameraEnabled"`
	ScreenShareEnabled bool `json:"screenShareEnabled"`
	FullscreenUsed     bool `json:"fullscreenUsed"`
}

// ResultPayload is the body of POST /test-results/submit.
type ResultPayload struct {
	TestTitle       string            `json:"testTitle"`
	EventID         string            `json:"eventId"`
	EventName       string            `json:"eventName"`
	Mode            TestMode          `json:"mode"`
	Answers         map[string]Answer `json:"answers"`
	MarkedForReview map[string]bool   `json:"markedForReview"`
	CorrectAnswers  int               `json:"correctAnswers"`
	Score           float64           `json:"score"`
	TotalMarks      float64           `json:"totalMarks"`
	TotalQuestions  int               `json:"totalQuestions"`
	TimeSpent       int               `json:"timeSpent"`
	Environment     EnvironmentUsage  `json:"environment"`
	AutoSubmitted   bool              `json:"autoSubmitted"`
	SubmitReason    string            `json:"submitReason"`
	LivesRemaining  int               `json:"livesRemaining"`
	UserID          string            `json:"userId,omitempty"`
	SessionID       string            `json:"sessionId"`
}

// ResultReceipt is the Results API success body.
type ResultReceipt struct {
	ID             string  `json:"id"`
	Score          float64 `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	// Queued marks a result accepted by the pending-results queue rather
	// than by the Results API itself.
	Queued bool `json:"queued,omitempty"`
}
