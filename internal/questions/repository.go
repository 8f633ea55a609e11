package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reflect-journal/backend/internal/models"
)

const questionColumns = `id, user_id, question, state, llm_answer, user_answer, created_at, answered_at`

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed question store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AnsweredHistory returns the user's answered exchanges, oldest first.
func (r *Repository) AnsweredHistory(ctx context.Context, userID string) ([]models.Exchange, error) {
	const query = `SELECT question, user_answer FROM questions
		WHERE user_id = $1 AND state = 'user_answered'
		ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Exchange
	for rows.Next() {
		var e models.Exchange
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts a new question in the created state.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (user_id, question, state, created_at)
		VALUES ($1, $2, 'created', $3)
		RETURNING id`
	if err := r.pool.QueryRow(ctx, query, q.UserID, q.Text, q.CreatedAt).Scan(&q.ID); err != nil {
		return err
	}
	q.State = models.StateCreated
	return nil
}

// SetLLMAnswer stores the model answer if none is stored yet.
func (r *Repository) SetLLMAnswer(ctx context.Context, userID string, id int64, answer string) error {
	const query = `UPDATE questions
		SET llm_answer = $1,
			state = CASE WHEN state = 'created' THEN 'llm_answered' ELSE state END
		WHERE id = $2 AND user_id = $3 AND llm_answer IS NULL`
	tag, err := r.pool.Exec(ctx, query, answer, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitAnswer records the user's answer; see Store.SubmitAnswer.
func (r *Repository) SubmitAnswer(ctx context.Context, userID string, id int64, text string, at time.Time, overwrite bool) error {
	query := `UPDATE questions
		SET user_answer = $1, answered_at = $2, state = 'user_answered'
		WHERE id = $3 AND user_id = $4 AND state <> 'user_answered'`
	if overwrite {
		query = `UPDATE questions
			SET user_answer = $1, answered_at = $2, state = 'user_answered'
			WHERE id = $3 AND user_id = $4`
	}
	tag, err := r.pool.Exec(ctx, query, text, at, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var state string
	err = r.pool.QueryRow(ctx, `SELECT state FROM questions WHERE id = $1 AND user_id = $2`, id, userID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyAnswered
}

// Get returns a question owned by the user.
func (r *Repository) Get(ctx context.Context, userID string, id int64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1 AND user_id = $2`
	q, err := scanPGQuestion(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// LatestUnanswered returns the newest question without a user answer, or nil.
func (r *Repository) LatestUnanswered(ctx context.Context, userID string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = $1 AND state <> 'user_answered'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return r.optionalOne(ctx, query, userID)
}

// LatestAnswered returns the most recently answered question, or nil.
func (r *Repository) LatestAnswered(ctx context.Context, userID string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = $1 AND state = 'user_answered'
		ORDER BY answered_at DESC, id DESC
		LIMIT 1`
	return r.optionalOne(ctx, query, userID)
}

// Archive returns answered questions except the latest answered, newest first.
// The exclusion is computed in the same statement so both views share a snapshot.
func (r *Repository) Archive(ctx context.Context, userID string) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = $1 AND state = 'user_answered'
		AND id <> COALESCE((
			SELECT id FROM questions
			WHERE user_id = $1 AND state = 'user_answered'
			ORDER BY answered_at DESC, id DESC
			LIMIT 1
		), 0)
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Question{}
	for rows.Next() {
		q, err := scanPGQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *Repository) optionalOne(ctx context.Context, query string, args ...any) (*models.Question, error) {
	q, err := scanPGQuestion(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func scanPGQuestion(row pgx.Row) (*models.Question, error) {
	var (
		q          models.Question
		state      string
		userAnswer *string
		answeredAt *time.Time
	)
	if err := row.Scan(&q.ID, &q.UserID, &q.Text, &state, &q.LLMAnswer, &userAnswer, &q.CreatedAt, &answeredAt); err != nil {
		return nil, err
	}
	q.State = models.State(state)
	if !q.State.Valid() {
		return nil, fmt.Errorf("question %d: unknown state %q", q.ID, state)
	}
	if userAnswer != nil && answeredAt != nil {
		q.Answer = &models.UserAnswer{Text: *userAnswer, AnsweredAt: *answeredAt}
	}
	return &q, nil
}
