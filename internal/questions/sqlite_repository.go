package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reflect-journal/backend/internal/models"
)

// SQLiteRepository is the SQLite Store used for local runs and tests.
// Timestamps are stored as Unix nanoseconds so ordering is numeric.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed question store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// AnsweredHistory returns the user's answered exchanges, oldest first.
func (r *SQLiteRepository) AnsweredHistory(ctx context.Context, userID string) ([]models.Exchange, error) {
	const query = `SELECT question, user_answer FROM questions
		WHERE user_id = ? AND state = 'user_answered'
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
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
func (r *SQLiteRepository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (user_id, question, state, created_at)
		VALUES (?, ?, 'created', ?)`
	res, err := r.db.ExecContext(ctx, query, q.UserID, q.Text, q.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	q.ID = id
	q.State = models.StateCreated
	return nil
}

// SetLLMAnswer stores the model answer if none is stored yet.
func (r *SQLiteRepository) SetLLMAnswer(ctx context.Context, userID string, id int64, answer string) error {
	const query = `UPDATE questions
		SET llm_answer = ?,
			state = CASE WHEN state = 'created' THEN 'llm_answered' ELSE state END
		WHERE id = ? AND user_id = ? AND llm_answer IS NULL`
	res, err := r.db.ExecContext(ctx, query, answer, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitAnswer records the user's answer; see Store.SubmitAnswer.
func (r *SQLiteRepository) SubmitAnswer(ctx context.Context, userID string, id int64, text string, at time.Time, overwrite bool) error {
	query := `UPDATE questions
		SET user_answer = ?, answered_at = ?, state = 'user_answered'
		WHERE id = ? AND user_id = ? AND state <> 'user_answered'`
	if overwrite {
		query = `UPDATE questions
			SET user_answer = ?, answered_at = ?, state = 'user_answered'
			WHERE id = ? AND user_id = ?`
	}
	res, err := r.db.ExecContext(ctx, query, text, at.UnixNano(), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var state string
	err = r.db.QueryRowContext(ctx, `SELECT state FROM questions WHERE id = ? AND user_id = ?`, id, userID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyAnswered
}

// Get returns a question owned by the user.
func (r *SQLiteRepository) Get(ctx context.Context, userID string, id int64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = ? AND user_id = ?`
	q, err := scanSQLiteQuestion(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// LatestUnanswered returns the newest question without a user answer, or nil.
func (r *SQLiteRepository) LatestUnanswered(ctx context.Context, userID string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = ? AND state <> 'user_answered'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return r.optionalOne(ctx, query, userID)
}

// LatestAnswered returns the most recently answered question, or nil.
func (r *SQLiteRepository) LatestAnswered(ctx context.Context, userID string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = ? AND state = 'user_answered'
		ORDER BY answered_at DESC, id DESC
		LIMIT 1`
	return r.optionalOne(ctx, query, userID)
}

// Archive returns answered questions except the latest answered, newest first.
func (r *SQLiteRepository) Archive(ctx context.Context, userID string) ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE user_id = ? AND state = 'user_answered'
		AND id <> COALESCE((
			SELECT id FROM questions
			WHERE user_id = ? AND state = 'user_answered'
			ORDER BY answered_at DESC, id DESC
			LIMIT 1
		), 0)
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Question{}
	for rows.Next() {
		q, err := scanSQLiteQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) optionalOne(ctx context.Context, query string, args ...any) (*models.Question, error) {
	q, err := scanSQLiteQuestion(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteQuestion(row rowScanner) (*models.Question, error) {
	var (
		q          models.Question
		state      string
		llmAnswer  sql.NullString
		userAnswer sql.NullString
		createdAt  int64
		answeredAt sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.UserID, &q.Text, &state, &llmAnswer, &userAnswer, &createdAt, &answeredAt); err != nil {
		return nil, err
	}
	q.State = models.State(state)
	if !q.State.Valid() {
		return nil, fmt.Errorf("question %d: unknown state %q", q.ID, state)
	}
	q.CreatedAt = time.Unix(0, createdAt).UTC()
	if llmAnswer.Valid {
		q.LLMAnswer = &llmAnswer.String
	}
	if userAnswer.Valid && answeredAt.Valid {
		q.Answer = &models.UserAnswer{Text: userAnswer.String, AnsweredAt: time.Unix(0, answeredAt.Int64).UTC()}
	}
	return &q, nil
}
