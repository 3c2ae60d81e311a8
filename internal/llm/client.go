// Package llm wraps the OpenAI-compatible endpoint for the three model calls
// the assistant makes: general chat streaming, moderation and narration of
// vendor facts.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"vendor-chat-backend/internal/types"
)

// ErrNoContent is returned when the model finished without any text, for
// example by answering with a tool call only.
var ErrNoContent = errors.New("llm: reply had no text content")

type Client struct {
	client          *openai.Client
	spec            PromptSpec
	model           string
	moderationModel string
	logger          zerolog.Logger
}

func New(client *openai.Client, spec PromptSpec, model, moderationModel string, logger zerolog.Logger) *Client {
	return &Client{
		client:          client,
		spec:            spec,
		model:           model,
		moderationModel: moderationModel,
		logger:          logger,
	}
}

// NewOpenAIClient builds the shared SDK client, honouring a custom base URL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// StreamChat streams a reply to the conversation, calling onDelta for each
// content chunk. Tool-call deltas are not executed; a stream that ends
// without any content returns ErrNoContent. An error from onDelta stops the
// stream and is returned.
func (c *Client) StreamChat(ctx context.Context, history []types.ChatMessage, onDelta func(string) error) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.convertMessages(history),
		Tools:       c.spec.tools(),
		Temperature: c.spec.temperature(),
		MaxTokens:   c.spec.maxTokens(),
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("llm: open stream: %w", err)
	}
	defer stream.Close()
	c.logger.Debug().Str("model", c.model).Int("history", len(history)).Msg("general chat stream opened")

	var wrote bool
	var toolCalls []string
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if !wrote {
				c.logger.Warn().Strs("tool_calls", toolCalls).Msg("general chat stream ended without text")
				return ErrNoContent
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("llm: stream recv: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			if tc.Function.Name != "" {
				toolCalls = append(toolCalls, tc.Function.Name)
			}
		}
		if delta.Content == "" {
			continue
		}
		wrote = true
		if err := onDelta(delta.Content); err != nil {
			return err
		}
	}
}

// Moderate reports whether any moderation result flagged the text.
func (c *Client) Moderate(ctx context.Context, text string) (bool, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.moderationModel,
	})
	if err != nil {
		return false, fmt.Errorf("llm: moderation: %w", err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}

// Narrate turns structured vendor facts into prose under the narrator prompt.
func (c *Client) Narrate(ctx context.Context, instruction string, facts any) (string, error) {
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("llm: marshal facts: %w", err)
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.spec.narratorTemperature(),
		MaxTokens:   c.spec.narratorMaxTokens(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.spec.Narrator},
			{Role: openai.ChatMessageRoleUser, Content: instruction + "\n\nFacts:\n" + string(factsJSON)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: narrate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: narrate: no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("llm: narrate: empty reply")
	}
	return out, nil
}

// convertMessages prepends the system prompt and flattens message parts to
// text. Messages with no text are dropped.
func (c *Client) convertMessages(history []types.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.spec.System})
	for _, m := range history {
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		role := m.Role
		switch role {
		case types.RoleAssistant, types.RoleSystem:
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	return out
}
