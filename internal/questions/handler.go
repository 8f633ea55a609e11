package questions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reflect-journal/backend/internal/middleware"
	"github.com/reflect-journal/backend/internal/models"
	"github.com/reflect-journal/backend/pkg/response"
)

// DegradedWarning accompanies a question returned without its model answer.
const DegradedWarning = "the question was saved but its answer could not be generated"

// AddAnswerRequest is the body for POST /add-answer.
type AddAnswerRequest struct {
	ID         int64  `json:"id"`
	UserAnswer string `json:"user_answer"`
}

// ArchiveEntry is one row of GET /answers.
type ArchiveEntry struct {
	ID                  int64     `json:"id"`
	DateQuestionCreated time.Time `json:"date_question_created"`
	Question            string    `json:"question"`
	LLMAnswer           *string   `json:"llm_answer"`
	UserAnswer          string    `json:"user_answer"`
}

// Handler serves the journal routes.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// LatestUnanswered handles GET /latest-unanswered.
func (h *Handler) LatestUnanswered(c *gin.Context) {
	q, err := h.svc.LatestUnanswered(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if q == nil {
		response.OK(c, gin.H{"id": nil, "question": nil})
		return
	}
	response.OK(c, gin.H{"id": q.ID, "question": q.Text})
}

// LatestAnswer handles GET /latest-answer.
func (h *Handler) LatestAnswer(c *gin.Context) {
	q, err := h.svc.LatestAnswered(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if q == nil {
		response.OK(c, gin.H{"question": nil, "llm_answer": nil, "user_answer": nil})
		return
	}
	response.OK(c, gin.H{"question": q.Text, "llm_answer": q.LLMAnswer, "user_answer": userAnswerText(q)})
}

// Answers handles GET /answers: the archive of older answered questions.
func (h *Handler) Answers(c *gin.Context) {
	list, err := h.svc.Archive(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]ArchiveEntry, 0, len(list))
	for i := range list {
		q := &list[i]
		out = append(out, ArchiveEntry{
			ID:                  q.ID,
			DateQuestionCreated: q.CreatedAt,
			Question:            q.Text,
			LLMAnswer:           q.LLMAnswer,
			UserAnswer:          userAnswerText(q),
		})
	}
	response.OK(c, out)
}

// AddAnswer handles POST /add-answer.
func (h *Handler) AddAnswer(c *gin.Context) {
	var req AddAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.ID <= 0 {
		response.BadRequest(c, "id is required")
		return
	}
	if err := h.svc.SubmitAnswer(c.Request.Context(), middleware.UserID(c), req.ID, req.UserAnswer); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"id": req.ID, "answered": true})
}

// GenerateNew handles POST /generate-new.
func (h *Handler) GenerateNew(c *gin.Context) {
	out, err := h.svc.GenerateNew(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if out != nil && out.Degraded {
			_ = c.Error(err)
			response.Partial(c, out, DegradedWarning)
			return
		}
		h.writeError(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var genErr *GenerationError
	switch {
	case errors.Is(err, ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyAnswered):
		response.Conflict(c, err.Error())
	case errors.As(err, &genErr) && genErr.Timeout():
		response.GatewayTimeout(c, "question generation timed out")
	case genErr != nil:
		response.BadGateway(c, "question generation failed")
	default:
		h.logger.Error("journal request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func userAnswerText(q *models.Question) string {
	if q.Answer == nil {
		return ""
	}
	return q.Answer.Text
}
