package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/archimedes/internal/llm/prompts"
	"github.com/pavelanni/archimedes/internal/model"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiClient talks to the Google Gemini API.
type GeminiClient struct {
	client    *genai.Client
	questions *genai.GenerativeModel
	text      *genai.GenerativeModel
	timeout   time.Duration
}

// questionSchema constrains generated question sets to the Question shape.
var questionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":            {Type: genai.TypeInteger},
			"text":          {Type: genai.TypeString},
			"options":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"correctAnswer": {Type: genai.TypeString},
			"explanation":   {Type: genai.TypeString},
			"topic":         {Type: genai.TypeString},
		},
		Required: []string{"id", "text", "options", "correctAnswer", "explanation", "topic"},
	},
}

// NewGemini creates a Gemini client. An API key is required. Extra options
// are applied after the key, for example to select another endpoint.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration, opts ...option.ClientOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set --llm-key or ARCHIMEDES_LLM_KEY")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	questions := client.GenerativeModel(modelName)
	questions.ResponseMIMEType = "application/json"
	questions.ResponseSchema = questionSchema

	return &GeminiClient{
		client:    client,
		questions: questions,
		text:      client.GenerativeModel(modelName),
		timeout:   timeout,
	}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Ping checks that the configured model exists.
func (c *GeminiClient) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.text.Info(ctx); err != nil {
		return fmt.Errorf("gemini model info: %w", err)
	}
	return nil
}

// GenerateQuestions asks Gemini for a mock test question set.
func (c *GeminiClient) GenerateQuestions(ctx context.Context, day int, topicFocus string) ([]model.Question, error) {
	prompt, err := prompts.BuildGeneratePrompt(day, topicFocus, false)
	if err != nil {
		return nil, err
	}
	raw, err := c.generate(ctx, c.questions, prompt)
	if err != nil {
		return nil, err
	}
	slog.Debug("gemini questions response", "day", day, "bytes", len(raw))

	questions, err := ParseQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	return questions, nil
}

// ExplainTopic returns a Markdown explanation of topic.
func (c *GeminiClient) ExplainTopic(ctx context.Context, topic string) (string, error) {
	prompt, err := prompts.BuildExplainPrompt(topic)
	if err != nil {
		return "", err
	}
	text, err := c.generate(ctx, c.text, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty explanation", ErrBadResponse)
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, m *genai.GenerativeModel, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrBadResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}
