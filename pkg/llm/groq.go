package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Groq exposes an OpenAI-compatible chat completions API
const groqBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is used when the panel options do not name one
const DefaultModel = "llama-3.3-70b-versatile"

// GroqClient wraps the OpenAI client pointed at Groq's endpoint
type GroqClient struct {
	client *openai.Client
	model  string
}

// NewGroqClient creates a Groq chat completion client
func NewGroqClient(apiKey, model string) (*GroqClient, error) {
	if apiKey == "" {
		return nil, errors.New("Groq API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = groqBaseURL

	return &GroqClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Complete performs one non-streaming chat completion over the full
// transcript and returns the assistant's reply
func (c *GroqClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("Groq API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from Groq")
	}

	return resp.Choices[0].Message.Content, nil
}
