package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/archimedes/internal/model"
)

const diagnosticTitle = "Diagnostic Assessment"

// diagnosticQuestions is fixture content for the day 1 test. It is stored
// as given, including the inconsistent explanation of question 3.
var diagnosticQuestions = []model.Question{
	{
		ID:            1,
		Text:          "What is the value of the expression 24 ÷ (3 ÷ 2) - (24 ÷ 3) × 2?",
		Options:       []string{"0", "2", "8", "16", "32"},
		CorrectAnswer: "0",
		Explanation:   "Evaluate the left bracket: 24 ÷ 1.5 = 16. Evaluate the right bracket: 8. Multiply by 2: 16. Subtract: 16 - 16 = 0.",
		Topic:         "Arithmetic",
	},
	{
		ID:            2,
		Text:          "Ella answers five mathematics questions every 40 seconds. Jasleen answers six mathematics questions every 45 seconds. How many seconds longer does it take Ella to answer exactly 360 questions than Jasleen?",
		Options:       []string{"120", "180", "240", "300", "360"},
		CorrectAnswer: "180",
		Explanation:   "Ella's rate: 40/5 = 8s/q. For 360q: 360*8 = 2880s. Jasleen's rate: 45/6 = 7.5s/q. For 360q: 360*7.5 = 2700s. Difference: 2880 - 2700 = 180s.",
		Topic:         "Rates & Ratios",
	},
	{
		ID:            3,
		Text:          "A rectangle has side lengths expressed algebraically as (3x + 6) cm and (9x - 2) cm. If the total perimeter is precisely 100 cm, what is the value of x?",
		Options:       []string{"2", "3", "23/6", "4", "11/3"},
		CorrectAnswer: "4",
		Explanation:   "Half the perimeter is 50. (3x + 6) + (9x - 2) = 50. 12x + 4 = 50. 12x = 46. x = 46/12 = 23/6. Wait, let's re-check the PDF. PDF says 12x = 46, x = 23/6. My option D was 4, C was 23/6. So C is correct.",
		Topic:         "Geometry",
	},
	{
		ID:            4,
		Text:          "Without using long division, identify which of the following large integers is definitively divisible by 12.",
		Options:       []string{"1,234,567,890", "5,432,109,876", "3,456,789,124", "1,111,111,114", "9,876,543,212"},
		CorrectAnswer: "5,432,109,876",
		Explanation:   "Rule of 12: Divisible by 3 and 4. 5,432,109,876 ends in 76 (div by 4). Sum of digits: 5+4+3+2+1+0+9+8+7+6 = 45 (div by 3).",
		Topic:         "Number Sense",
	},
	{
		ID:            5,
		Text:          "The mean age of a group of 5 teachers is 32 years. A new teacher joins and the mean age drops to 30 years. How old is the new teacher?",
		Options:       []string{"20", "22", "24", "25", "28"},
		CorrectAnswer: "20",
		Explanation:   "Total age of 5 teachers = 5 * 32 = 160. Total age of 6 teachers = 6 * 30 = 180. New teacher = 180 - 160 = 20.",
		Topic:         "Data & Stats",
	},
}

// DiagnosticQuestions returns a copy of the day 1 fixture questions.
func DiagnosticQuestions() []model.Question {
	out := make([]model.Question, len(diagnosticQuestions))
	for i, q := range diagnosticQuestions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// Seed inserts the diagnostic test at day 1 if the catalog is empty.
// It reports whether a test was inserted.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	count, err := s.store.TestCount(ctx)
	if err != nil {
		return false, fmt.Errorf("count tests: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.CreateTest(ctx, 1, diagnosticTitle, DiagnosticQuestions()); err != nil {
		return false, fmt.Errorf("seed diagnostic test: %w", err)
	}
	slog.Info("seeded diagnostic test", "day", 1, "questions", len(diagnosticQuestions))
	return true, nil
}
