package questions

import (
	"errors"
	"fmt"

	"github.com/reflect-journal/backend/internal/llm"
)

var (
	// ErrUnauthorized is returned when no user identity accompanies a request.
	ErrUnauthorized = errors.New("missing user identity")
	// ErrInvalidInput is returned for empty or whitespace-only answers.
	ErrInvalidInput = errors.New("answer text is empty")
	// ErrNotFound is returned when a question does not exist or belongs to another user.
	ErrNotFound = errors.New("question not found")
	// ErrAlreadyAnswered is returned when a question already holds a user answer.
	ErrAlreadyAnswered = errors.New("question already answered")
)

// Stage names the generation call that failed.
type Stage string

const (
	StageQuestion Stage = "question"
	StageAnswer   Stage = "answer"
)

// GenerationError reports a failed call to the generation service.
type GenerationError struct {
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("generate %s: timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("generate %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Timeout reports whether the call failed by exceeding its deadline.
func (e *GenerationError) Timeout() bool {
	var to *llm.ErrTimeout
	return errors.As(e.Err, &to)
}

// StorageError reports a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err as a StorageError unless it is one of the domain sentinels.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyAnswered) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
