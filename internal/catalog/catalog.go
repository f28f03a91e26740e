package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/archimedes/internal/model"
	"github.com/pavelanni/archimedes/internal/store"
)

var (
	// ErrNotFound is returned for an unknown test id.
	ErrNotFound = errors.New("test not found")
	// ErrConflict is returned when a test already exists for a day number.
	ErrConflict = errors.New("test already exists for this day")
	// ErrInvalid is returned for a malformed test definition.
	ErrInvalid = errors.New("invalid test definition")
	// ErrGenerationFailed is returned when the content provider yields nothing usable.
	ErrGenerationFailed = errors.New("generation failed")
)

// ContentProvider produces question sets and topic explanations.
type ContentProvider interface {
	GenerateQuestions(ctx context.Context, day int, topicFocus string) ([]model.Question, error)
	ExplainTopic(ctx context.Context, topic string) (string, error)
}

// Service manages mock test definitions.
type Service struct {
	store    *store.Store
	provider ContentProvider
}

// New creates a catalog Service. provider may be nil, in which case
// generation and explanations fail with ErrGenerationFailed.
func New(s *store.Store, p ContentProvider) *Service {
	return &Service{store: s, provider: p}
}

// ListTests returns all tests ordered by day number.
func (s *Service) ListTests(ctx context.Context) ([]model.TestSummary, error) {
	return s.store.ListTests(ctx)
}

// GetTest returns a full test by id.
func (s *Service) GetTest(ctx context.Context, id int64) (model.MockTest, error) {
	t, err := s.store.GetTest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return t, fmt.Errorf("test %d: %w", id, ErrNotFound)
	}
	return t, err
}

// CreateTest stores a new test and returns its id.
func (s *Service) CreateTest(ctx context.Context, day int, title string, questions []model.Question) (int64, error) {
	if day < 1 {
		return 0, fmt.Errorf("%w: day number must be positive, got %d", ErrInvalid, day)
	}
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("%w: empty title", ErrInvalid)
	}
	if err := model.ValidateQuestions(questions); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	id, err := s.store.CreateTest(ctx, model.MockTest{DayNumber: day, Title: title, Questions: questions})
	if errors.Is(err, store.ErrDuplicateDay) {
		return 0, fmt.Errorf("day %d: %w", day, ErrConflict)
	}
	if err != nil {
		return 0, err
	}
	slog.Info("created mock test", "id", id, "day", day, "questions", len(questions))
	return id, nil
}

// NextDay returns the first day number after the highest one in use.
func (s *Service) NextDay(ctx context.Context) (int, error) {
	maxDay, err := s.store.MaxDayNumber(ctx)
	if err != nil {
		return 0, err
	}
	return maxDay + 1, nil
}

// GenerateNext asks the content provider for a question set and stores it
// as the test for day. Day 0 means the next free day. On provider failure
// the catalog is left unchanged.
func (s *Service) GenerateNext(ctx context.Context, day int, topicFocus string) (model.MockTest, error) {
	if day == 0 {
		next, err := s.NextDay(ctx)
		if err != nil {
			return model.MockTest{}, err
		}
		day = next
	}
	if s.provider == nil {
		return model.MockTest{}, fmt.Errorf("%w: no content provider configured", ErrGenerationFailed)
	}

	questions, err := s.provider.GenerateQuestions(ctx, day, topicFocus)
	if err != nil {
		slog.Error("question generation failed", "day", day, "error", err)
		return model.MockTest{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(questions) == 0 {
		return model.MockTest{}, fmt.Errorf("%w: no questions returned", ErrGenerationFailed)
	}

	title := fmt.Sprintf("Mock Test #%d", day)
	id, err := s.CreateTest(ctx, day, title, questions)
	if errors.Is(err, ErrInvalid) {
		return model.MockTest{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if err != nil {
		return model.MockTest{}, err
	}
	return model.MockTest{ID: id, DayNumber: day, Title: title, Questions: questions}, nil
}

// ExplainTopic returns a Markdown explanation for a Learning Center topic.
func (s *Service) ExplainTopic(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("%w: empty topic", ErrInvalid)
	}
	if s.provider == nil {
		return "", fmt.Errorf("%w: no content provider configured", ErrGenerationFailed)
	}
	text, err := s.provider.ExplainTopic(ctx, topic)
	if err != nil {
		slog.Error("topic explanation failed", "topic", topic, "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

// Topics returns the Learning Center syllabus.
func (s *Service) Topics() []model.Topic {
	return append([]model.Topic(nil), syllabus...)
}

var syllabus = []model.Topic{
	{ID: "number-sense", Title: "Number Sense & Systems"},
	{ID: "arithmetic", Title: "Arithmetic Operations"},
	{ID: "rates", Title: "Rates, Ratios & Proportions"},
	{ID: "data", Title: "Data, Stats & Probability"},
	{ID: "logic", Title: "Logic & Combinatorics"},
	{ID: "geometry", Title: "Geometry & Spatial Reasoning"},
}

// TopicTitle resolves a syllabus id to its title. Unknown ids are returned as is.
func TopicTitle(id string) string {
	for _, t := range syllabus {
		if t.ID == id {
			return t.Title
		}
	}
	return id
}
