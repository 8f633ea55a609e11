package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout_Expires(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "late", Delay: time.Second})
	p := WithTimeout(mock, 20*time.Millisecond)

	_, err := p.Generate(context.Background(), UserPrompt("", "q", 10, 0))
	require.Error(t, err)

	var to *ErrTimeout
	require.True(t, errors.As(err, &to), "expected ErrTimeout, got %T", err)
	assert.Equal(t, 20*time.Millisecond, to.After)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "fast"})
	p := WithTimeout(mock, time.Second)

	resp, err := p.Generate(context.Background(), UserPrompt("", "q", 10, 0))
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Text)
	assert.Equal(t, "mock", p.ModelID())
}

func TestWithTimeout_CallerCancelIsNotTimeout(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: "late", Delay: time.Second})
	p := WithTimeout(mock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, UserPrompt("", "q", 10, 0))
	require.ErrorIs(t, err, context.Canceled)
	var to *ErrTimeout
	assert.False(t, errors.As(err, &to))
}

func TestWithTimeout_ZeroDisables(t *testing.T) {
	mock := NewMockProvider()
	assert.Same(t, Provider(mock), WithTimeout(mock, 0))
}

func TestWithTimeout_KeepsProviderError(t *testing.T) {
	boom := &ErrProviderUnavailable{Err: errors.New("boom")}
	p := WithTimeout(NewMockProvider(MockResponse{Err: boom}), time.Second)

	_, err := p.Generate(context.Background(), UserPrompt("", "q", 10, 0))
	assert.Same(t, boom, err)
}
