package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reflect-journal/backend/internal/llm"
	"github.com/reflect-journal/backend/internal/models"
)

func newTestService(t *testing.T, gen llm.Provider, policy AnswerPolicy) (*Service, *SQLiteRepository) {
	t.Helper()
	store := newSQLiteStore(t)
	svc := NewService(store, gen, Config{MaxTokens: 150, Temperature: 0.7, AnswerPolicy: policy}, zap.NewNop())
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store
}

func userMessage(req llm.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func TestGenerateNew_FirstQuestion(t *testing.T) {
	gen := llm.NewMockProvider(
		llm.MockResponse{Text: "  What calms you?\n"},
		llm.MockResponse{Text: "Rain on the window."},
	)
	svc, store := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	out, err := svc.GenerateNew(ctx, "alice")
	require.NoError(t, err)
	assert.NotZero(t, out.ID)
	assert.Equal(t, "What calms you?", out.Question)
	require.NotNil(t, out.LLMAnswer)
	assert.Equal(t, "Rain on the window.", *out.LLMAnswer)
	assert.False(t, out.Degraded)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, userMessage(reqs[0]), EmptyHistory)
	assert.Contains(t, userMessage(reqs[1]), "Question you need to answer about the user: What calms you?")
	assert.Equal(t, 150, reqs[0].MaxTokens)
	assert.InDelta(t, 0.7, reqs[1].Temperature, 1e-9)

	q, err := store.Get(ctx, "alice", out.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLLMAnswered, q.State)
	assert.Equal(t, "What calms you?", q.Text)
	assert.Nil(t, q.Answer)

	latest, err := svc.LatestUnanswered(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, out.ID, latest.ID)
}

func TestGenerateNew_UsesAnsweredHistory(t *testing.T) {
	gen := llm.NewMockProvider(
		llm.MockResponse{Text: "Q1"}, llm.MockResponse{Text: "A1"},
		llm.MockResponse{Text: "Q2"}, llm.MockResponse{Text: "A2"},
		llm.MockResponse{Text: "Q3"}, llm.MockResponse{Text: "A3"},
	)
	svc, _ := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	first, err := svc.GenerateNew(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAnswer(ctx, "alice", first.ID, "mine 1"))

	second, err := svc.GenerateNew(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAnswer(ctx, "alice", second.ID, "mine 2"))

	_, err = svc.GenerateNew(ctx, "alice")
	require.NoError(t, err)

	reqs := gen.Requests()
	require.Len(t, reqs, 6)
	assert.Contains(t, userMessage(reqs[2]), "Q: Q1\nA: mine 1")
	assert.Contains(t, userMessage(reqs[4]), "Q: Q1\nA: mine 1\nQ: Q2\nA: mine 2")
	assert.NotContains(t, userMessage(reqs[4]), "A1", "the speculative answer never feeds history")
}

func TestGenerateNew_QuestionFailureStoresNothing(t *testing.T) {
	gen := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("connection refused")}})
	svc, _ := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	out, err := svc.GenerateNew(ctx, "alice")
	assert.Nil(t, out)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageQuestion, genErr.Stage)
	assert.False(t, genErr.Timeout())
	assert.Equal(t, 1, gen.CallCount())

	latest, err := svc.LatestUnanswered(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGenerateNew_EmptyQuestionIsInvalid(t *testing.T) {
	gen := llm.NewMockProvider(llm.MockResponse{Text: " \n\t"})
	svc, _ := newTestService(t, gen, PolicyReject)

	_, err := svc.GenerateNew(context.Background(), "alice")
	var invalid *llm.ErrInvalidResponse
	require.ErrorAs(t, err, &invalid)

	latest, err := svc.LatestUnanswered(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGenerateNew_AnswerFailureIsDegraded(t *testing.T) {
	gen := llm.NewMockProvider(
		llm.MockResponse{Text: "What calms you?"},
		llm.MockResponse{Err: &llm.ErrRateLimit{Err: errors.New("429")}},
	)
	svc, store := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	out, err := svc.GenerateNew(ctx, "alice")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageAnswer, genErr.Stage)
	require.NotNil(t, out)
	assert.True(t, out.Degraded)
	assert.Nil(t, out.LLMAnswer)
	assert.Equal(t, "What calms you?", out.Question)

	q, err := store.Get(ctx, "alice", out.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCreated, q.State)
	assert.Nil(t, q.LLMAnswer)

	// The question is still answerable.
	require.NoError(t, svc.SubmitAnswer(ctx, "alice", out.ID, "Rain."))
}

func TestGenerateNew_Timeout(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: "too late", Delay: time.Second})
	svc, _ := newTestService(t, llm.WithTimeout(mock, 20*time.Millisecond), PolicyReject)

	start := time.Now()
	out, err := svc.GenerateNew(context.Background(), "alice")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Nil(t, out)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.True(t, genErr.Timeout())
	assert.Equal(t, StageQuestion, genErr.Stage)
}

type failingStore struct {
	Store
	createErr error
	setErr    error
}

func (f *failingStore) Create(ctx context.Context, q *models.Question) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.Create(ctx, q)
}

func (f *failingStore) SetLLMAnswer(ctx context.Context, userID string, id int64, answer string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.SetLLMAnswer(ctx, userID, id, answer)
}

func TestGenerateNew_StorageFailures(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		gen := llm.NewMockProvider(llm.MockResponse{Text: "Q1"}, llm.MockResponse{Text: "A1"})
		store := &failingStore{Store: newSQLiteStore(t), createErr: errors.New("disk full")}
		svc := NewService(store, gen, Config{MaxTokens: 150, Temperature: 0.7}, zap.NewNop())

		out, err := svc.GenerateNew(context.Background(), "alice")
		assert.Nil(t, out)
		var storeErr *StorageError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, 1, gen.CallCount(), "no answer is generated for an unsaved question")
	})

	t.Run("set llm answer", func(t *testing.T) {
		gen := llm.NewMockProvider(llm.MockResponse{Text: "Q1"}, llm.MockResponse{Text: "A1"})
		store := &failingStore{Store: newSQLiteStore(t), setErr: errors.New("disk full")}
		svc := NewService(store, gen, Config{MaxTokens: 150, Temperature: 0.7}, zap.NewNop())

		out, err := svc.GenerateNew(context.Background(), "alice")
		var storeErr *StorageError
		require.ErrorAs(t, err, &storeErr)
		require.NotNil(t, out)
		assert.True(t, out.Degraded)
		assert.Nil(t, out.LLMAnswer)
	})
}

func TestSubmitAnswer(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T, policy AnswerPolicy) (*Service, *SQLiteRepository, int64) {
		gen := llm.NewMockProvider(llm.MockResponse{Text: "What calms you?"}, llm.MockResponse{Text: "Rain."})
		svc, store := newTestService(t, gen, policy)
		out, err := svc.GenerateNew(ctx, "alice")
		require.NoError(t, err)
		return svc, store, out.ID
	}

	t.Run("records answer", func(t *testing.T) {
		svc, store, id := setup(t, PolicyReject)
		require.NoError(t, svc.SubmitAnswer(ctx, "alice", id, "Long walks."))

		q, err := store.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, models.StateUserAnswered, q.State)
		assert.Equal(t, "Long walks.", q.Answer.Text)
		require.NotNil(t, q.LLMAnswer)
		assert.Equal(t, "Rain.", *q.LLMAnswer)
	})

	t.Run("blank answer is rejected", func(t *testing.T) {
		svc, store, id := setup(t, PolicyReject)
		for _, text := range []string{"", "   ", "\n\t"} {
			assert.ErrorIs(t, svc.SubmitAnswer(ctx, "alice", id, text), ErrInvalidInput)
		}
		q, err := store.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, models.StateLLMAnswered, q.State)
		assert.Nil(t, q.Answer)
	})

	t.Run("second answer is rejected", func(t *testing.T) {
		svc, store, id := setup(t, PolicyReject)
		require.NoError(t, svc.SubmitAnswer(ctx, "alice", id, "first"))
		assert.ErrorIs(t, svc.SubmitAnswer(ctx, "alice", id, "second"), ErrAlreadyAnswered)

		q, err := store.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, "first", q.Answer.Text)
	})

	t.Run("overwrite policy replaces answer", func(t *testing.T) {
		svc, store, id := setup(t, PolicyOverwrite)
		require.NoError(t, svc.SubmitAnswer(ctx, "alice", id, "first"))
		require.NoError(t, svc.SubmitAnswer(ctx, "alice", id, "second"))

		q, err := store.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, "second", q.Answer.Text)
	})

	t.Run("other user's question is not found", func(t *testing.T) {
		svc, store, id := setup(t, PolicyReject)
		assert.ErrorIs(t, svc.SubmitAnswer(ctx, "bob", id, "not mine"), ErrNotFound)
		assert.ErrorIs(t, svc.SubmitAnswer(ctx, "alice", id+99, "nothing"), ErrNotFound)
		assert.ErrorIs(t, svc.SubmitAnswer(ctx, "alice", 0, "nothing"), ErrNotFound)

		q, err := store.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Nil(t, q.Answer)
	})

	t.Run("missing identity", func(t *testing.T) {
		svc, _, id := setup(t, PolicyReject)
		assert.ErrorIs(t, svc.SubmitAnswer(ctx, "", id, "x"), ErrUnauthorized)
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	gen := llm.NewMockProvider()
	for i := 1; i <= 4; i++ {
		gen.AddResponse(llm.MockResponse{Text: fmt.Sprintf("Q%d", i)})
		gen.AddResponse(llm.MockResponse{Text: fmt.Sprintf("A%d", i)})
	}
	svc, _ := newTestService(t, gen, PolicyReject)

	ids := make([]int64, 0, 4)
	for i := 0; i < 4; i++ {
		out, err := svc.GenerateNew(ctx, "alice")
		require.NoError(t, err)
		ids = append(ids, out.ID)
	}
	for _, id := range ids[:3] {
		require.NoError(t, svc.SubmitAnswer(ctx, "alice", id, "answer"))
	}

	unanswered, err := svc.LatestUnanswered(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, unanswered)
	assert.Equal(t, ids[3], unanswered.ID)
	assert.False(t, unanswered.Answered())

	latest, err := svc.LatestAnswered(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)

	archive, err := svc.Archive(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, archive, 2)
	for _, q := range archive {
		assert.NotEqual(t, latest.ID, q.ID)
		assert.True(t, q.Answered())
	}

	other, err := svc.Archive(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
	none, err := svc.LatestAnswered(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = svc.LatestUnanswered(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConcurrentUsersStayIsolated(t *testing.T) {
	const rounds = 5
	var (
		mu      sync.Mutex
		n       int
		prompts []string
	)
	gen := llm.PromptFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		prompts = append(prompts, userMessage(req))
		if llm.PurposeFrom(ctx) == string(StageQuestion) {
			return fmt.Sprintf("Question %d?", n), nil
		}
		return fmt.Sprintf("Guess %d.", n), nil
	})
	svc, _ := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for _, user := range []string{"alice", "bob"} {
		user := user
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				out, err := svc.GenerateNew(gctx, user)
				if err != nil {
					return err
				}
				if err := svc.SubmitAnswer(gctx, user, out.ID, fmt.Sprintf("%s-answer-%d", user, i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, user := range []string{"alice", "bob"} {
		latest, err := svc.LatestAnswered(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, user, latest.UserID)
		assert.True(t, strings.HasPrefix(latest.Answer.Text, user+"-answer-"))

		archive, err := svc.Archive(ctx, user)
		require.NoError(t, err)
		assert.Len(t, archive, rounds-1)
		for _, q := range archive {
			assert.Equal(t, user, q.UserID)
			assert.True(t, strings.HasPrefix(q.Answer.Text, user+"-answer-"))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, prompts, 4*rounds)
	for _, p := range prompts {
		assert.False(t, strings.Contains(p, "alice-") && strings.Contains(p, "bob-"), "prompt mixes users:\n%s", p)
	}
}

func TestSubmitAnswer_ConcurrentSubmissionsAcceptOne(t *testing.T) {
	gen := llm.NewMockProvider(llm.MockResponse{Text: "What calms you?"}, llm.MockResponse{Text: "Rain."})
	svc, store := newTestService(t, gen, PolicyReject)
	ctx := context.Background()
	out, err := svc.GenerateNew(ctx, "alice")
	require.NoError(t, err)

	const n = 16
	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			results[i] = svc.SubmitAnswer(ctx, "alice", out.ID, fmt.Sprintf("answer %d", i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var accepted []int
	for i, err := range results {
		if err == nil {
			accepted = append(accepted, i)
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyAnswered)
	}
	require.Len(t, accepted, 1)

	q, err := store.Get(ctx, "alice", out.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("answer %d", accepted[0]), q.Answer.Text)
}

func TestGenerateNew_ConcurrentSameUser(t *testing.T) {
	const n = 8
	var (
		mu sync.Mutex
		k  int
	)
	gen := llm.PromptFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		k++
		return fmt.Sprintf("%s %d", llm.PurposeFrom(ctx), k), nil
	})
	svc, store := newTestService(t, gen, PolicyReject)
	ctx := context.Background()

	outs := make([]*Generated, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			out, err := svc.GenerateNew(gctx, "alice")
			outs[i] = out
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, n)
	for _, out := range outs {
		require.NotNil(t, out)
		assert.False(t, seen[out.ID], "duplicate id %d", out.ID)
		seen[out.ID] = true

		q, err := store.Get(ctx, "alice", out.ID)
		require.NoError(t, err)
		assert.Equal(t, out.Question, q.Text)
		require.NotNil(t, q.LLMAnswer)
		assert.Equal(t, *out.LLMAnswer, *q.LLMAnswer)
	}
}
