package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
	"github.com/nebulachat/nebula/internal/store"
	"github.com/nebulachat/nebula/internal/testutil"
)

// stubResponder returns a fixed response or error without going through
// Genkit.
type stubResponder struct {
	response string
	err      error
	calls    int
}

func (s *stubResponder) Generate(context.Context, string) (string, error) {
	s.calls++
	return s.response, s.err
}

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(kv.NewMemory(), log.NewNop())
	require.NoError(t, err)
	return db
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	db := newTestDB(t)

	_, err := NewPipeline(nil, db, log.NewNop())
	assert.Error(t, err)

	_, err = NewPipeline(&stubResponder{}, nil, log.NewNop())
	assert.Error(t, err)

	_, err = NewPipeline(&stubResponder{}, db, nil)
	assert.Error(t, err)
}

func TestPipeline_Reply(t *testing.T) {
	t.Run("persists the generated reply", func(t *testing.T) {
		db := newTestDB(t)
		conv, err := db.CreateConversation("u1")
		require.NoError(t, err)

		pipeline, err := NewPipeline(&stubResponder{response: "generated text"}, db, log.NewNop())
		require.NoError(t, err)

		msg, err := pipeline.Reply(context.Background(), conv.ID, "hello")
		require.NoError(t, err)

		assert.Equal(t, store.RoleAssistant, msg.Role)
		assert.Equal(t, "generated text", msg.Content)

		persisted := db.MessagesByConversation(conv.ID)
		require.Len(t, persisted, 1)
		assert.Equal(t, msg.ID, persisted[0].ID)
	})

	t.Run("generation failure becomes the apology", func(t *testing.T) {
		db := newTestDB(t)
		conv, err := db.CreateConversation("u1")
		require.NoError(t, err)

		responder := &stubResponder{err: errors.New("service unavailable")}
		pipeline, err := NewPipeline(responder, db, log.NewNop())
		require.NoError(t, err)

		msg, err := pipeline.Reply(context.Background(), conv.ID, "hello")
		require.NoError(t, err)

		assert.Equal(t, store.RoleAssistant, msg.Role)
		assert.Equal(t, ApologyMessage, msg.Content)

		// No retry: one user message, one assistant message.
		assert.Equal(t, 1, responder.calls)
		assert.Len(t, db.MessagesByConversation(conv.ID), 1)
	})

	t.Run("error only when the append fails", func(t *testing.T) {
		db := newTestDB(t)
		pipeline, err := NewPipeline(&stubResponder{response: "text"}, db, log.NewNop())
		require.NoError(t, err)

		_, err = pipeline.Reply(context.Background(), "vanished-conversation", "hello")
		assert.ErrorIs(t, err, store.ErrConversationNotFound)
	})
}

func TestNewGenkitResponder_RequiresDependencies(t *testing.T) {
	g := genkit.Init(context.Background())

	_, err := NewGenkitResponder(ResponderConfig{ModelName: "m", Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewGenkitResponder(ResponderConfig{Genkit: g, Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewGenkitResponder(ResponderConfig{Genkit: g, ModelName: "m"})
	assert.Error(t, err)
}

func TestGenkitResponder_Generate(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockLLM("fallback answer")
	mock.AddResponse("weather", "It is sunny.")
	mock.Register(g)

	responder, err := NewGenkitResponder(ResponderConfig{
		Genkit:    g,
		ModelName: testutil.MockModelName,
		Logger:    log.NewNop(),
	})
	require.NoError(t, err)

	t.Run("returns matched response", func(t *testing.T) {
		text, err := responder.Generate(ctx, "what is the weather today?")
		require.NoError(t, err)
		assert.Equal(t, "It is sunny.", text)
	})

	t.Run("returns fallback for unmatched prompt", func(t *testing.T) {
		text, err := responder.Generate(ctx, "something else entirely")
		require.NoError(t, err)
		assert.Equal(t, "fallback answer", text)
	})

	t.Run("propagates model failure", func(t *testing.T) {
		mock.FailWith(errors.New("quota exhausted"))
		defer mock.FailWith(nil)

		_, err := responder.Generate(ctx, "anything")
		assert.Error(t, err)
	})

	t.Run("empty model output is an error", func(t *testing.T) {
		empty := testutil.NewMockLLM("   ")
		gEmpty := genkit.Init(ctx)
		empty.Register(gEmpty)

		r, err := NewGenkitResponder(ResponderConfig{
			Genkit:    gEmpty,
			ModelName: testutil.MockModelName,
			Logger:    log.NewNop(),
		})
		require.NoError(t, err)

		_, err = r.Generate(ctx, "anything")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("exhausted rate limit fails within the call timeout", func(t *testing.T) {
		// Zero-rate limiter: Wait can never succeed, so the timeout fires.
		r, err := NewGenkitResponder(ResponderConfig{
			Genkit:    g,
			ModelName: testutil.MockModelName,
			Logger:    log.NewNop(),
			Timeout:   50 * time.Millisecond,
			Limiter:   rate.NewLimiter(0, 0),
		})
		require.NoError(t, err)

		start := time.Now()
		_, err = r.Generate(ctx, "anything")
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}
