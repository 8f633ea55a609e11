package questions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/reflect-journal/backend/internal/llm"
	"github.com/reflect-journal/backend/internal/models"
)

// AnswerPolicy decides what happens when an answered question is answered again.
type AnswerPolicy string

const (
	// PolicyReject refuses a second answer with ErrAlreadyAnswered.
	PolicyReject AnswerPolicy = "reject"
	// PolicyOverwrite replaces the stored answer.
	PolicyOverwrite AnswerPolicy = "overwrite"
)

// ParseAnswerPolicy maps a config value to a policy; empty means PolicyReject.
func ParseAnswerPolicy(s string) (AnswerPolicy, error) {
	switch AnswerPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	}
	return "", fmt.Errorf("unknown answer policy %q", s)
}

// Config holds the generation parameters and answer policy.
type Config struct {
	MaxTokens    int
	Temperature  float64
	AnswerPolicy AnswerPolicy
}

// Generated is the outcome of GenerateNew. Degraded is set when the question
// was stored but its model answer could not be produced or saved.
type Generated struct {
	ID        int64   `json:"id"`
	Question  string  `json:"question"`
	LLMAnswer *string `json:"llm_answer"`
	Degraded  bool    `json:"degraded"`
}

// Service runs the question lifecycle and the read-only journal views.
type Service struct {
	store  Store
	gen    llm.Provider
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates the journal service.
func NewService(store Store, gen llm.Provider, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AnswerPolicy == "" {
		cfg.AnswerPolicy = PolicyReject
	}
	return &Service{
		store:  store,
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("github.com/reflect-journal/backend/internal/questions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GenerateNew asks the model for a new question from the user's answered
// history, stores it, then asks for a speculative answer and stores that.
//
// A failure of the first call stores nothing. A failure after the question is
// stored returns the usable question with Degraded set together with the error.
func (s *Service) GenerateNew(ctx context.Context, userID string) (*Generated, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	ctx, span := s.tracer.Start(ctx, "questions.GenerateNew")
	defer span.End()
	log := s.logger.With(zap.String("user_id", userID))

	history, err := s.store.AnsweredHistory(ctx, userID)
	if err != nil {
		return nil, s.fail(span, storageErr("load history", err))
	}

	question, err := s.generate(ctx, StageQuestion, QuestionPrompt(history))
	if err != nil {
		return nil, s.fail(span, err)
	}

	rec := &models.Question{UserID: userID, Text: question, CreatedAt: s.now()}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, s.fail(span, storageErr("create question", err))
	}
	span.SetAttributes(attribute.Int64("question.id", rec.ID))
	log.Info("question created", zap.Int64("question_id", rec.ID), zap.Int("history_len", len(history)))

	out := &Generated{ID: rec.ID, Question: rec.Text}

	answer, err := s.generate(ctx, StageAnswer, AnswerPrompt(history, question))
	if err != nil {
		out.Degraded = true
		log.Warn("question stored without llm answer", zap.Int64("question_id", rec.ID), zap.Error(err))
		return out, s.fail(span, err)
	}

	if err := s.store.SetLLMAnswer(ctx, userID, rec.ID, answer); err != nil {
		out.Degraded = true
		log.Error("store llm answer", zap.Int64("question_id", rec.ID), zap.Error(err))
		return out, s.fail(span, storageErr("set llm answer", err))
	}
	out.LLMAnswer = &answer
	return out, nil
}

// generate performs exactly one call for stage and returns trimmed, non-empty text.
func (s *Service) generate(ctx context.Context, stage Stage, p Prompt) (string, error) {
	req := llm.UserPrompt(p.System, p.User, s.cfg.MaxTokens, s.cfg.Temperature)
	resp, err := s.gen.Generate(llm.WithPurpose(ctx, string(stage)), req)
	if err != nil {
		return "", &GenerationError{Stage: stage, Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &GenerationError{Stage: stage, Err: &llm.ErrInvalidResponse{Text: resp.Text, Err: fmt.Errorf("empty %s", stage)}}
	}
	return text, nil
}

// SubmitAnswer records the user's answer to one of their own questions.
func (s *Service) SubmitAnswer(ctx context.Context, userID string, questionID int64, text string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if strings.TrimSpace(text) == "" {
		return ErrInvalidInput
	}
	if questionID <= 0 {
		return ErrNotFound
	}
	overwrite := s.cfg.AnswerPolicy == PolicyOverwrite
	if err := s.store.SubmitAnswer(ctx, userID, questionID, text, s.now(), overwrite); err != nil {
		return storageErr("submit answer", err)
	}
	s.logger.Info("answer recorded", zap.String("user_id", userID), zap.Int64("question_id", questionID))
	return nil
}

// LatestUnanswered returns the user's newest unanswered question, or nil.
func (s *Service) LatestUnanswered(ctx context.Context, userID string) (*models.Question, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	q, err := s.store.LatestUnanswered(ctx, userID)
	return q, storageErr("latest unanswered", err)
}

// LatestAnswered returns the user's most recently answered question, or nil.
func (s *Service) LatestAnswered(ctx context.Context, userID string) (*models.Question, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	q, err := s.store.LatestAnswered(ctx, userID)
	return q, storageErr("latest answered", err)
}

// Archive returns the user's answered questions minus the latest answered one.
func (s *Service) Archive(ctx context.Context, userID string) ([]models.Question, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.store.Archive(ctx, userID)
	return list, storageErr("archive", err)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
