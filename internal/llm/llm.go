package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
)

// ErrBadResponse is returned when the model's reply is empty or has the wrong shape.
var ErrBadResponse = errors.New("unusable LLM response")

// Provider generates mock-test content.
type Provider interface {
	GenerateQuestions(ctx context.Context, day int, topicFocus string) ([]model.Question, error)
	ExplainTopic(ctx context.Context, topic string) (string, error)
	Ping(ctx context.Context) error
}

// Provider kinds accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a Provider.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New creates the Provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want %s or %s)", cfg.Provider, ProviderOpenAI, ProviderGemini)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ParseQuestions decodes a generated question set. It accepts a bare JSON
// array or an object with a "questions" field, optionally inside a Markdown
// code fence. Missing or repeated ids are renumbered from 1.
func ParseQuestions(raw string) ([]model.Question, error) {
	raw = stripFence(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty content", ErrBadResponse)
	}

	var questions []model.Question
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &questions); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
	} else {
		var wrapped struct {
			Questions []model.Question `json:"questions"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
		questions = wrapped.Questions
	}

	renumber(questions)
	if err := model.ValidateQuestions(questions); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return questions, nil
}

func renumber(questions []model.Question) {
	seen := make(map[int64]bool, len(questions))
	ok := true
	for _, q := range questions {
		if q.ID <= 0 || seen[q.ID] {
			ok = false
			break
		}
		seen[q.ID] = true
	}
	if ok {
		return
	}
	for i := range questions {
		questions[i].ID = int64(i + 1)
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
