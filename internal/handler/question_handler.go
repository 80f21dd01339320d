package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/response"
	"github.com/stemsi/tara/internal/validator"
)

// QuestionLister provides the question set of a test.
type QuestionLister interface {
	Questions(ctx context.Context, mode model.TestMode, eventID string) (*model.QuestionSet, error)
}

// QuestionHandler serves the candidate-facing question list.
type QuestionHandler struct {
	questions QuestionLister
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions QuestionLister) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

type questionQuery struct {
	EventID string `form:"event_id" binding:"omitempty,eventid"`
}

// ListQuestions godoc
// GET /api/v1/tests/:mode/questions?event_id=
// Lists the questions of a test without the answer key.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	mode, err := model.ParseTestMode(c.Param("mode"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidMode)
		return
	}

	var q questionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	set, err := h.questions.Questions(c.Request.Context(), mode, q.EventID)
	if err != nil {
		response.FailWithError(c, http.StatusInternalServerError, response.ErrInternal, err)
		return
	}
	if len(set.Questions) == 0 {
		response.Fail(c, http.StatusNotFound, response.ErrNoQuestions)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"mode":      mode,
		"questions": set.Questions,
	})
}
