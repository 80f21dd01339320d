package model

// ViolationRecord is one proctoring violation, queued for the audit log.
type ViolationRecord struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	EventID    string `json:"event_id"`
	Mode       string `json:"mode"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	LivesLeft  int    `json:"lives_left"`
	RecordedAt int64  `json:"recorded_at"`
}
