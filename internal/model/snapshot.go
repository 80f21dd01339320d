package model

// ExamContext identifies the event a session's questions and result are bound to.
type ExamContext struct {
	EventID   string `json:"eventId"`
	EventName string `json:"eventName"`
}

// Snapshot is the serialized in-progress session written to durable storage
// so a reload can resume.
type Snapshot struct {
	Answers         map[string]Answer `json:"answers"`
	MarkedForReview map[string]bool   `json:"markedForReview"`
	Lives           int               `json:"lives"`
	TimeRemaining   int               `json:"timeRemaining"`
	CurrentIndex    int               `json:"currentIndex"`
	IsTestStarted   bool              `json:"isTestStarted"`
	ExamContext     ExamContext       `json:"examContext"`
	LastUpdated     int64             `json:"lastUpdated"`

	// SessionID is the attempt id. It survives reloads and is sent with the
	// result so the results API can deduplicate.
	SessionID string `json:"sessionId,omitempty"`
	// SubmittingSince is set (unix millis) while an auto submission is in
	// flight and cleared when it fails.
	SubmittingSince int64  `json:"submittingSince,omitempty"`
	SubmitReason    string `json:"submitReason,omitempty"`

	// Revision orders saves issued by one session; it is not persisted.
	Revision uint64 `json:"-"`
}

// HasProgress reports whether the snapshot is worth resuming.
func (s *Snapshot) HasProgress() bool {
	return s != nil && (s.IsTestStarted || len(s.Answers) > 0)
}
