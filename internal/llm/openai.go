package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/archimedes/internal/llm/prompts"
	"github.com/pavelanni/archimedes/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "llama3.2"

// OpenAIClient talks to an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates a client for an OpenAI-compatible endpoint.
func NewOpenAI(baseURL, apiKey, modelName string, timeout time.Duration) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIClient{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}
}

// Ping checks that the endpoint answers.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateQuestions asks the model for a mock test question set.
func (c *OpenAIClient) GenerateQuestions(ctx context.Context, day int, topicFocus string) ([]model.Question, error) {
	prompt, err := prompts.BuildGeneratePrompt(day, topicFocus, true)
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, prompt, true, 0.7)
	if err != nil {
		return nil, err
	}
	slog.Debug("LLM questions response", "day", day, "bytes", len(raw))

	questions, err := ParseQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	return questions, nil
}

// ExplainTopic returns a Markdown explanation of topic.
func (c *OpenAIClient) ExplainTopic(ctx context.Context, topic string) (string, error) {
	prompt, err := prompts.BuildExplainPrompt(topic)
	if err != nil {
		return "", err
	}
	text, err := c.complete(ctx, prompt, false, 0.5)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty explanation", ErrBadResponse)
	}
	return text, nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string, jsonMode bool, temperature float32) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
