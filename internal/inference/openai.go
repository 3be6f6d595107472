package inference

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	maxSendAttempts  = 2
	transientBackoff = 2 * time.Second
)

var endInterviewTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: openai.FunctionDefinition{
		Name:        string(IntentEndInterview),
		Description: "Call when the interview has covered everything needed and should move to debriefing.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

// OpenAIClient implements Client over the chat completion API. The API itself
// is stateless, so each handle owns its running message history here; Delete
// releases it.
type OpenAIClient struct {
	client       *openai.Client
	chatModel    string
	debriefModel string

	mu      sync.Mutex
	threads map[Handle][]openai.ChatCompletionMessage
}

func NewOpenAIClient(apiKey, chatModel, debriefModel string) *OpenAIClient {
	return &OpenAIClient{
		client:       openai.NewClient(apiKey),
		chatModel:    chatModel,
		debriefModel: debriefModel,
		threads:      make(map[Handle][]openai.ChatCompletionMessage),
	}
}

func (c *OpenAIClient) CreateConversation(ctx context.Context) (Handle, error) {
	h := Handle(uuid.NewString())
	c.mu.Lock()
	c.threads[h] = nil
	c.mu.Unlock()

	log.Debug().Str("handle", string(h)).Msg("inference conversation created")
	return h, nil
}

func (c *OpenAIClient) Prime(ctx context.Context, h Handle, chunks []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.threads[h]
	if !ok {
		return ErrHandleNotFound
	}
	for _, chunk := range chunks {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: chunk,
		})
	}
	c.threads[h] = msgs
	return nil
}

func (c *OpenAIClient) Send(ctx context.Context, h Handle, text string, allowed []Intent) (Reply, error) {
	c.mu.Lock()
	msgs, ok := c.threads[h]
	if !ok {
		c.mu.Unlock()
		return Reply{}, ErrHandleNotFound
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	request := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: append([]openai.ChatCompletionMessage(nil), msgs...),
	}
	c.mu.Unlock()

	for _, intent := range allowed {
		if intent == IntentEndInterview {
			request.Tools = []openai.Tool{endInterviewTool}
		}
	}

	resp, err := c.complete(ctx, request)
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errors.New("inference: empty completion response")
	}

	choice := resp.Choices[0].Message

	if intent := matchIntent(choice.ToolCalls, allowed); intent != "" {
		return Reply{Intent: intent}, nil
	}

	c.mu.Lock()
	if _, ok := c.threads[h]; ok {
		c.threads[h] = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: choice.Content,
		})
	}
	c.mu.Unlock()

	return Reply{Text: choice.Content}, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) || attempt == maxSendAttempts {
			return resp, err
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("transient inference error, backing off")
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(transientBackoff):
		}
	}
	return resp, err
}

// Cancel is a no-op for the completion API: there is no server-side run to
// abort, the in-flight HTTP call is torn down by context cancellation.
// Calling it on a finished or unknown conversation is safe.
func (c *OpenAIClient) Cancel(ctx context.Context, h Handle) error {
	return nil
}

func (c *OpenAIClient) Delete(ctx context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.threads[h]; !ok {
		return ErrHandleNotFound
	}
	delete(c.threads, h)

	log.Debug().Str("handle", string(h)).Msg("inference conversation deleted")
	return nil
}

func (c *OpenAIClient) GenerateDebrief(ctx context.Context, transcript string) (string, error) {
	resp, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.debriefModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: debriefInstruction,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: transcript,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("inference: empty debrief response")
	}
	return resp.Choices[0].Message.Content, nil
}

const debriefInstruction = "You are a trainer reviewing an epidemiological interview transcript. " +
	"Summarize what the interviewer did well, what was missed, and concrete suggestions, " +
	"grouped under those three headings."

func matchIntent(calls []openai.ToolCall, allowed []Intent) Intent {
	for _, call := range calls {
		for _, intent := range allowed {
			if call.Function.Name == string(intent) {
				return intent
			}
		}
	}
	return ""
}

// IsTransient reports whether the error is worth a bounded retry:
// rate limits, server-side failures, timeouts.
func IsTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
