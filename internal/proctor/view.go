package proctor

import "github.com/stemsi/tara/internal/model"

// DeviceState is the live checklist shown in the lobby.
type DeviceState struct {
	CameraOn        bool `json:"camera_on"`
	MicTrackPresent bool `json:"mic_track_present"`
	ScreenSharing   bool `json:"screen_sharing"`
	Fullscreen      bool `json:"fullscreen"`
}

// Ready reports whether every device condition of the gate holds.
func (d DeviceState) Ready() bool {
	return d.CameraOn && d.MicTrackPresent && d.ScreenSharing && d.Fullscreen
}

type BannerLevel string

const (
	BannerError BannerLevel = "error"
	BannerInfo  BannerLevel = "info"
)

// Banner is the single message line. An error always wins over info.
type Banner struct {
	Level   BannerLevel `json:"level"`
	Message string      `json:"message"`
}

// Notice is the transient life-lost overlay.
type Notice struct {
	Kind      ViolationKind `json:"kind"`
	Message   string        `json:"message"`
	LivesLeft int           `json:"lives_left"`
}

// Confirmation asks the user to confirm a submit with unanswered questions.
type Confirmation struct {
	Unanswered int `json:"unanswered"`
}

// View is the render model published after every state change.
type View struct {
	Revision        uint64                  `json:"revision"`
	SessionID       string                  `json:"session_id"`
	Title           string                  `json:"title"`
	Mode            model.TestMode          `json:"mode"`
	Exam            model.ExamContext       `json:"exam"`
	Status          Status                  `json:"status"`
	FailReason      string                  `json:"fail_reason,omitempty"`
	Lives           int                     `json:"lives"`
	MaxLives        int                     `json:"max_lives"`
	TimeRemaining   int                     `json:"time_remaining"`
	CurrentIndex    int                     `json:"current_index"`
	TotalQuestions  int                     `json:"total_questions"`
	QuestionIDs     []string                `json:"question_ids"`
	CurrentQuestion *model.Question         `json:"current_question,omitempty"`
	Answers         map[string]model.Answer `json:"answers"`
	MarkedForReview map[string]bool         `json:"marked_for_review"`
	Unanswered      int                     `json:"unanswered"`
	Devices         DeviceState             `json:"devices"`
	CodeLength      int                     `json:"code_length"`
	Resumable       bool                    `json:"resumable"`
	StartLabel      string                  `json:"start_label"`
	Banner          *Banner                 `json:"banner,omitempty"`
	Notice          *Notice                 `json:"notice,omitempty"`
	Confirm         *Confirmation           `json:"confirm,omitempty"`
	LockInput       bool                    `json:"lock_input"`
	Receipt         *model.ResultReceipt    `json:"receipt,omitempty"`
}

func (s *Session) viewLocked() View {
	v := View{
		Revision:        s.rev,
		SessionID:       s.id,
		Title:           s.opts.TestTitle,
		Mode:            s.mode,
		Exam:            s.exam,
		Status:          s.status,
		FailReason:      s.failReason,
		Lives:           s.lives,
		MaxLives:        s.opts.InitialLives,
		TimeRemaining:   s.remaining,
		CurrentIndex:    s.current,
		TotalQuestions:  len(s.set.Questions),
		QuestionIDs:     make([]string, 0, len(s.set.Questions)),
		Answers:         model.CloneAnswers(s.answers),
		MarkedForReview: model.CloneMarks(s.marked),
		Unanswered:      s.unansweredLocked(),
		Devices:         s.devicesLocked(),
		CodeLength:      len([]rune(s.codeEntry)),
		Resumable:       s.resumable,
		StartLabel:      "Begin",
		LockInput:       s.status == StatusRunning,
		Receipt:         s.receipt,
	}
	for _, q := range s.set.Questions {
		v.QuestionIDs = append(v.QuestionIDs, q.ID)
	}
	if s.current >= 0 && s.current < len(s.set.Questions) {
		q := s.set.Questions[s.current]
		v.CurrentQuestion = &q
	}
	if s.resumable || s.status == StatusPaused {
		v.StartLabel = "Resume"
	}

	switch {
	case s.errMsg != "":
		v.Banner = &Banner{Level: BannerError, Message: s.errMsg}
	case s.infoMsg != "":
		v.Banner = &Banner{Level: BannerInfo, Message: s.infoMsg}
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	if s.confirm != nil {
		c := *s.confirm
		v.Confirm = &c
	}
	return v
}
