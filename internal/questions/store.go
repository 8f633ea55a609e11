package questions

import (
	"context"
	"time"

	"github.com/reflect-journal/backend/internal/models"
)

// Store persists journal questions. Every method is scoped to one user and
// must be safe for concurrent use. Individual writes are atomic; whole
// generation runs are not serialized.
type Store interface {
	// AnsweredHistory returns the user's answered exchanges, oldest first.
	AnsweredHistory(ctx context.Context, userID string) ([]models.Exchange, error)

	// Create inserts q in StateCreated and sets q.ID.
	Create(ctx context.Context, q *models.Question) error

	// SetLLMAnswer stores the speculative answer once. A question answered by
	// the user in the meantime keeps its StateUserAnswered.
	SetLLMAnswer(ctx context.Context, userID string, id int64, answer string) error

	// SubmitAnswer records the user's answer in a single conditional write.
	// Unless overwrite is set, an already answered question yields
	// ErrAlreadyAnswered; a missing or foreign question yields ErrNotFound.
	SubmitAnswer(ctx context.Context, userID string, id int64, text string, at time.Time, overwrite bool) error

	// Get returns one question owned by the user.
	Get(ctx context.Context, userID string, id int64) (*models.Question, error)

	// LatestUnanswered returns the most recently created unanswered question, or nil.
	LatestUnanswered(ctx context.Context, userID string) (*models.Question, error)

	// LatestAnswered returns the most recently answered question, or nil.
	LatestAnswered(ctx context.Context, userID string) (*models.Question, error)

	// Archive returns answered questions except the latest answered one, newest first.
	Archive(ctx context.Context, userID string) ([]models.Question, error)
}
