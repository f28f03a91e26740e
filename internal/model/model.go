package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// User is the single student the application serves.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is one multiple-choice item of a mock test.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Topic         string   `json:"topic"`
}

// HasOption reports whether option is one of the question's listed options.
func (q Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

// Validate checks the shape of a question. The correct answer must be one
// of the listed options.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question %d: empty text", q.ID)
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("question %d: no options", q.ID)
	}
	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("question %d: correct answer %q is not one of the options", q.ID, q.CorrectAnswer)
	}
	return nil
}

// ValidateQuestions checks every question and that ids are unique within the set.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("no questions")
	}
	seen := make(map[int64]bool, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// TestSummary is the catalog listing view of a mock test.
type TestSummary struct {
	ID        int64  `json:"id"`
	DayNumber int    `json:"day_number"`
	Title     string `json:"title"`
}

// MockTest is a full test definition. Day numbers are unique across tests.
type MockTest struct {
	ID        int64      `json:"id"`
	DayNumber int        `json:"day_number"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answers maps a question id to the option the student selected.
// Unanswered questions have no entry.
type Answers map[int64]string

// TestResult is the stored outcome of one completed attempt.
type TestResult struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	TestID         int64     `json:"test_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Answers        Answers   `json:"answers"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ProgressEntry is a result joined with its test's day number and title.
type ProgressEntry struct {
	TestResult
	DayNumber int    `json:"day_number"`
	Title     string `json:"title"`
}

// TopicMastery is a per-topic proficiency level. Stored schema only.
type TopicMastery struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	Topic        string `json:"topic"`
	MasteryLevel int    `json:"mastery_level"`
}

// Topic is a Learning Center syllabus entry.
type Topic struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Score returns round(correct/total*100), rounding half up.
// An empty test scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}

// CountCorrect counts questions whose recorded answer equals the correct
// answer exactly. Unanswered questions count as incorrect.
func CountCorrect(questions []Question, answers Answers) int {
	n := 0
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a == q.CorrectAnswer {
			n++
		}
	}
	return n
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	UserName        string
	SessionDuration time.Duration
	Lang            string
}
