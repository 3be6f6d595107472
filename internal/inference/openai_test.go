package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openai "github.com/sashabaranov/go-openai"
)

func TestConversationLifecycle(t *testing.T) {
	c := NewOpenAIClient("sk-test", "gpt-4o-mini", "gpt-4o-mini")
	ctx := context.Background()

	t.Run("create then delete", func(t *testing.T) {
		h, err := c.CreateConversation(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, h)

		require.NoError(t, c.Delete(ctx, h))
		assert.ErrorIs(t, c.Delete(ctx, h), ErrHandleNotFound)
	})

	t.Run("prime unknown handle", func(t *testing.T) {
		err := c.Prime(ctx, Handle("missing"), []string{"persona"})
		assert.ErrorIs(t, err, ErrHandleNotFound)
	})

	t.Run("prime appends system context", func(t *testing.T) {
		h, err := c.CreateConversation(ctx)
		require.NoError(t, err)
		defer c.Delete(ctx, h)

		require.NoError(t, c.Prime(ctx, h, []string{"chunk one", "chunk two"}))

		c.mu.Lock()
		msgs := c.threads[h]
		c.mu.Unlock()

		require.Len(t, msgs, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
		assert.Equal(t, "chunk one", msgs[0].Content)
	})

	t.Run("send on unknown handle", func(t *testing.T) {
		_, err := c.Send(ctx, Handle("missing"), "hello", nil)
		assert.ErrorIs(t, err, ErrHandleNotFound)
	})

	t.Run("cancel is idempotent-safe", func(t *testing.T) {
		assert.NoError(t, c.Cancel(ctx, Handle("missing")))
		assert.NoError(t, c.Cancel(ctx, Handle("missing")))
	})
}

func TestMatchIntent(t *testing.T) {
	endCall := []openai.ToolCall{{Function: openai.FunctionCall{Name: "end_interview"}}}

	t.Run("matches allowed intent", func(t *testing.T) {
		intent := matchIntent(endCall, []Intent{IntentEndInterview})
		assert.Equal(t, IntentEndInterview, intent)
	})

	t.Run("ignores disallowed intent", func(t *testing.T) {
		intent := matchIntent(endCall, nil)
		assert.Equal(t, Intent(""), intent)
	})

	t.Run("ignores unknown tool", func(t *testing.T) {
		calls := []openai.ToolCall{{Function: openai.FunctionCall{Name: "lookup_weather"}}}
		intent := matchIntent(calls, []Intent{IntentEndInterview})
		assert.Equal(t, Intent(""), intent)
	})
}

func TestIsTransient(t *testing.T) {
	t.Run("rate limit is transient", func(t *testing.T) {
		assert.True(t, IsTransient(&openai.APIError{HTTPStatusCode: 429}))
	})

	t.Run("server errors are transient", func(t *testing.T) {
		assert.True(t, IsTransient(&openai.APIError{HTTPStatusCode: 503}))
	})

	t.Run("client errors are not", func(t *testing.T) {
		assert.False(t, IsTransient(&openai.APIError{HTTPStatusCode: 400}))
	})

	t.Run("deadline exceeded is transient", func(t *testing.T) {
		assert.True(t, IsTransient(context.DeadlineExceeded))
	})

	t.Run("generic errors are not", func(t *testing.T) {
		assert.False(t, IsTransient(errors.New("no such model")))
	})
}
