// Package chat sends chat completions to OpenRouter through its
// OpenAI-compatible API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// Roles used in a conversation.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Completer returns the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []Message) (string, error)
}

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("completion returned no choices")

// Client is the OpenRouter-backed Completer.
type Client struct {
	client *openai.Client
}

// NewClient returns a Client for the OpenAI-compatible API at baseURL.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{client: openai.NewClientWithConfig(cfg)}
}

// Complete sends the whole conversation and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, model string, msgs []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, len(msgs)),
	}
	for i, m := range msgs {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	logger.Debug("chat: %d messages to %s", len(msgs), model)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	logger.Debug("chat: finish_reason=%s tokens=%d", resp.Choices[0].FinishReason, resp.Usage.TotalTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
