package models

import (
	"time"
)

// State is the lifecycle stage of a journal question.
type State string

const (
	// StateCreated means the question text is known and no answer exists yet.
	StateCreated State = "created"
	// StateLLMAnswered means the speculative model answer has been stored.
	StateLLMAnswered State = "llm_answered"
	// StateUserAnswered is terminal: the user's own answer has been recorded.
	StateUserAnswered State = "user_answered"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateLLMAnswered, StateUserAnswered:
		return true
	}
	return false
}

// UserAnswer is the user's response to a question. Present only in StateUserAnswered.
type UserAnswer struct {
	Text       string    `json:"user_answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Question is one generated self-reflection question owned by a user.
type Question struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"user_id"`
	Text      string      `json:"question"`
	State     State       `json:"state"`
	LLMAnswer *string     `json:"llm_answer"`
	Answer    *UserAnswer `json:"answer,omitempty"`
	CreatedAt time.Time   `json:"date_question_created"`
}

// Answered reports whether the user has answered q.
func (q *Question) Answered() bool {
	return q.State == StateUserAnswered && q.Answer != nil
}

// Exchange is one answered question as fed into prompt history.
type Exchange struct {
	Question string
	Answer   string
}
